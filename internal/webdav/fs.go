// Package webdav exposes the shared tree as a read-only WebDAV mount so
// clients can map it as a network drive instead of using the browser.
package webdav

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/net/webdav"

	"github.com/lanbox/lanbox/internal/sandbox"
)

// osFS serves files straight from disk, with every request path resolved
// through the sandbox first. Paths the sandbox denies look absent to DAV
// clients rather than forbidden, matching how listings elide them.
type osFS struct {
	authority *sandbox.Authority
}

var _ webdav.FileSystem = (*osFS)(nil)

func (fs *osFS) resolve(name string) (string, error) {
	abs, err := fs.authority.Resolve(name)
	if err != nil {
		return "", os.ErrNotExist
	}
	return abs, nil
}

func (fs *osFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

func (fs *osFS) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

func (fs *osFS) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

func (fs *osFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, os.ErrPermission
	}
	abs, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	return &roFile{File: f, authority: fs.authority, abs: abs}, nil
}

func (fs *osFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	abs, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

// roFile wraps *os.File to refuse writes and to hide directory children
// that fall outside the sandbox, such as symlinks pointing elsewhere.
type roFile struct {
	*os.File
	authority *sandbox.Authority
	abs       string
}

var _ webdav.File = (*roFile)(nil)

func (f *roFile) Write(p []byte) (int, error) {
	return 0, os.ErrPermission
}

func (f *roFile) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := f.File.Readdir(count)
	if err != nil {
		return infos, err
	}
	kept := infos[:0]
	for _, fi := range infos {
		if f.authority.Allows(filepath.Join(f.abs, fi.Name())) {
			kept = append(kept, fi)
		}
	}
	return kept, nil
}
