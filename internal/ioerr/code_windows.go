//go:build windows

package ioerr

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// notRegularFileCode is the Win32 code reported when the well-known config
// name resolves to a directory instead of a regular file.
const notRegularFileCode = int64(windows.ERROR_ACCESS_DENIED)

// Code extracts the raw Win32 error code (the value GetLastError would
// have returned) from err, or 0 if none is present.
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
		return KindUnknown
	}
	switch windows.Errno(errno) {
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		return KindNotFound
	case windows.ERROR_ACCESS_DENIED, windows.ERROR_SHARING_VIOLATION:
		return KindPermissionDenied
	case windows.ERROR_DIRECTORY:
		return KindNotRegularFile
	case windows.ERROR_TOO_MANY_OPEN_FILES, windows.ERROR_NOT_ENOUGH_MEMORY:
		return KindIOFailed
	default:
		return KindUnknown
	}
}
