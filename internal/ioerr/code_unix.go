//go:build linux || darwin || freebsd || netbsd || openbsd

package ioerr

import (
	"errors"
	"io/fs"
	"syscall"

	"golang.org/x/sys/unix"
)

// notRegularFileCode is the errno reported when the well-known config name
// resolves to a directory instead of a regular file.
const notRegularFileCode = int64(unix.EISDIR)

// Code extracts the raw errno from err, or 0 if none is present. This is
// the value clients match against platform documentation (man errno).
func Code(err error) int64 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int64(errno)
	}
	return 0
}

func classifyPlatform(err error) Kind {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			if e, ok := pathErr.Err.(syscall.Errno); ok {
				errno = e
			}
		}
	}
	switch errno {
	case unix.ENOENT:
		return KindNotFound
	case unix.EACCES, unix.EPERM:
		return KindPermissionDenied
	case unix.EISDIR, unix.ENOTDIR:
		return KindNotRegularFile
	case unix.ENOSPC, unix.EMFILE, unix.ENFILE, unix.EIO, unix.ELOOP:
		return KindIOFailed
	default:
		return KindUnknown
	}
}
