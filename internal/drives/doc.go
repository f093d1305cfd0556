// Package drives enumerates mounted drive roots for the allowed-path
// defaults and the config endpoint.
package drives
