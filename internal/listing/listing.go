// Package listing builds the per-request directory views behind the browse
// and search endpoints. Nothing here is cached; every request reads the
// directory fresh.
package listing

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lanbox/lanbox/internal/sandbox"
)

// Entry is one row of a directory listing. Size is zero for directories.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Build reads the immediate children of dir, drops entries the authority
// rejects, and returns the rest sorted directories-first, then by
// case-insensitive name.
func Build(a *sandbox.Authority, dir string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		full := filepath.Join(dir, item.Name())
		if !a.Allows(full) {
			continue
		}
		e := Entry{Name: item.Name(), IsDir: item.IsDir()}
		if item.Type()&fs.ModeSymlink != 0 {
			// Classify symlinks by their target so linked directories browse
			// like directories.
			if st, err := os.Stat(full); err == nil {
				e.IsDir = st.IsDir()
				if !e.IsDir {
					e.Size = st.Size()
				}
			}
		} else if !e.IsDir {
			if info, err := item.Info(); err == nil {
				e.Size = info.Size()
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// Search returns the names of dir's immediate children whose name contains
// term case-insensitively, skipping children the authority rejects just as
// Build does. An empty term matches everything. The scan is deliberately
// non-recursive.
func Search(a *sandbox.Authority, dir, term string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	names := []string{}
	for _, item := range items {
		if !a.Allows(filepath.Join(dir, item.Name())) {
			continue
		}
		if strings.Contains(strings.ToLower(item.Name()), term) {
			names = append(names, item.Name())
		}
	}
	return names, nil
}
