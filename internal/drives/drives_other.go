//go:build !windows

package drives

// Detect returns nil on non-Windows systems; everything reachable hangs off
// the configured roots already.
func Detect() []string { return nil }
