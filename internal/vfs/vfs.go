// Package vfs is the filesystem seam the loader reads and watches through:
// a real-OS implementation for production use, and an in-memory fake for
// deterministic tests. Both are backed by afero, so the loader never
// touches os.* directly.
package vfs

import (
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"qljsconfig/internal/canonical"
	"qljsconfig/internal/ioerr"
)

// FS is the filesystem surface the loader's components need: reading
// files, stat'ing them, canonicalizing paths, and handing out the
// underlying afero.Fs.
type FS interface {
	canonical.FS

	ReadFile(path string) ([]byte, error)
	Canonicalize(path string) (canonical.Result, error)

	// Underlying exposes the wrapped afero.Fs for callers that need
	// afero's own directory-listing or open-handle primitives rather than
	// the narrower FS surface above. The Platform Watcher does not use it:
	// it arms directories by path through fsnotify.
	Underlying() afero.Fs
}

type fsWrapper struct {
	fs afero.Fs
}

// NewOS returns an FS backed by the real operating system filesystem.
func NewOS() FS {
	return &fsWrapper{fs: afero.NewOsFs()}
}

// NewFake returns an FS backed by an in-memory filesystem. It does not
// implement real symlinks: LstatIfPossible always reports
// followedSymlink=false and ReadlinkIfPossible always fails, so
// Canonicalize treats every fake-filesystem component as a plain file. Tests that need symlink retargeting run against NewOS.
func NewFake() FS {
	return &fsWrapper{fs: afero.NewMemMapFs()}
}

func (w *fsWrapper) Underlying() afero.Fs {
	return w.fs
}

func (w *fsWrapper) Stat(name string) (os.FileInfo, error) {
	fi, err := w.fs.Stat(name)
	if err != nil {
		return nil, ioerr.New(name, err)
	}
	return fi, nil
}

func (w *fsWrapper) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	if lstater, ok := w.fs.(afero.Lstater); ok {
		fi, followed, err := lstater.LstatIfPossible(name)
		if err != nil {
			return nil, false, err
		}
		return fi, followed, nil
	}
	fi, err := w.fs.Stat(name)
	if err != nil {
		return nil, false, err
	}
	return fi, false, nil
}

func (w *fsWrapper) ReadlinkIfPossible(name string) (string, error) {
	if linker, ok := w.fs.(afero.Symlinker); ok {
		return linker.ReadlinkIfPossible(name)
	}
	return "", afero.ErrNoSymlink
}

func (w *fsWrapper) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return nil, ioerr.New(path, err)
	}
	return data, nil
}

func (w *fsWrapper) Canonicalize(path string) (canonical.Result, error) {
	return canonical.Canonicalize(w, path)
}

// CreateFile writes contents to path, creating parent directories as
// needed. It exists on the concrete fake so tests can set up and mutate
// scenarios without going through the OS.
func CreateFile(f FS, path string, contents []byte) error {
	w, ok := f.(*fsWrapper)
	if !ok {
		return fs.ErrInvalid
	}
	dir := dirname(path)
	if dir != "" {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	handle, err := w.fs.Create(path)
	if err != nil {
		return err
	}
	defer handle.Close()
	_, err = handle.Write(contents)
	return err
}

// Remove deletes path.
func Remove(f FS, path string) error {
	w, ok := f.(*fsWrapper)
	if !ok {
		return fs.ErrInvalid
	}
	return w.fs.Remove(path)
}

// Rename moves oldpath to newpath.
func Rename(f FS, oldpath, newpath string) error {
	w, ok := f.(*fsWrapper)
	if !ok {
		return fs.ErrInvalid
	}
	return w.fs.Rename(oldpath, newpath)
}

// Mkdir creates path and any missing parents.
func Mkdir(f FS, path string) error {
	w, ok := f.(*fsWrapper)
	if !ok {
		return fs.ErrInvalid
	}
	return w.fs.MkdirAll(path, 0o755)
}

// Chmod changes path's mode.
func Chmod(f FS, path string, mode os.FileMode) error {
	w, ok := f.(*fsWrapper)
	if !ok {
		return fs.ErrInvalid
	}
	return w.fs.Chmod(path, mode)
}

func dirname(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
