// Package sandbox decides whether a client-supplied path may touch the
// filesystem. Every handler resolves paths through an Authority before any
// read or write.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrDenied is returned for any path that resolves outside the allowed
// roots. Callers answer 403 and must not echo the resolved path.
var ErrDenied = errors.New("path outside allowed roots")

// Authority validates client paths against a fixed set of allowed roots.
// Immutable after New, safe for concurrent use.
type Authority struct {
	root    string
	allowed []string
}

// New builds an Authority rooted at root. Root and allowed entries are made
// absolute and canonical up front. Root itself must sit inside the allowed
// set.
func New(root string, allowed []string) (*Authority, error) {
	absRoot, err := canonical(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root directory: %w", err)
	}
	roots := make([]string, 0, len(allowed))
	for _, entry := range allowed {
		abs, err := canonical(entry)
		if err != nil {
			return nil, fmt.Errorf("resolve allowed root %q: %w", entry, err)
		}
		roots = append(roots, abs)
	}
	a := &Authority{root: absRoot, allowed: roots}
	if !a.contains(absRoot) {
		return nil, errors.New("root directory is not inside the allowed roots")
	}
	return a, nil
}

// Root returns the canonical root directory.
func (a *Authority) Root() string { return a.root }

// Allowed returns a copy of the canonical allowed roots.
func (a *Authority) Allowed() []string {
	out := make([]string, len(a.allowed))
	copy(out, a.allowed)
	return out
}

// Resolve turns a client-supplied path fragment into a validated absolute
// path. The fragment is joined under the root directory; leading separators
// and .. runs cannot climb above it. The result is canonicalized (symlinks
// resolved for the part that exists) and accepted only when it sits inside
// an allowed root on a full segment boundary, so /home/userx never matches
// an allowed /home/user.
func (a *Authority) Resolve(userPath string) (string, error) {
	rel, err := CleanRequestPath(userPath)
	if err != nil {
		return "", ErrDenied
	}
	abs := filepath.Join(a.root, filepath.FromSlash(rel))
	abs = resolveExisting(filepath.Clean(abs))
	if !a.contains(abs) {
		return "", ErrDenied
	}
	return abs, nil
}

// Allows reports whether an absolute filesystem path, after
// canonicalization, sits inside the allowed roots. Used when enumerating
// directory children whose absolute paths are already known.
func (a *Authority) Allows(absPath string) bool {
	abs, err := filepath.Abs(absPath)
	if err != nil {
		return false
	}
	return a.contains(resolveExisting(filepath.Clean(abs)))
}

// CleanRequestPath normalizes a client path fragment into forward-slash
// relative form: backslashes folded to slashes, dot and dot-dot segments
// collapsed against a virtual root, leading separators stripped. Embedded
// NUL bytes are rejected.
func CleanRequestPath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", errors.New("NUL byte in path")
	}
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/"), nil
}

func (a *Authority) contains(abs string) bool {
	for _, root := range a.allowed {
		if root == string(os.PathSeparator) {
			return true
		}
		if abs == root || strings.HasPrefix(abs, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return resolveExisting(filepath.Clean(abs)), nil
}

// resolveExisting resolves symlinks in the deepest existing ancestor of p
// and rejoins the remainder. Upload targets may name paths that do not exist
// yet, so a plain EvalSymlinks is not enough.
func resolveExisting(p string) string {
	var tail []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if len(tail) == 0 {
				return resolved
			}
			return filepath.Join(append([]string{resolved}, tail...)...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}
