// Package canonical resolves filesystem paths to a canonical form:
// symlinks followed, ".."s resolved against the already-resolved parent
// rather than stripped textually, with the longest existing prefix
// returned even when the full path does not exist.
package canonical

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"qljsconfig/internal/ioerr"
)

// Path is an opaque, canonicalized absolute path. Two Paths are the same
// location on disk if and only if they compare equal.
type Path string

func (p Path) String() string { return string(p) }

// FS is the minimal filesystem surface Canonicalize needs. Implementations
// that cannot report symlinks (such as an in-memory fake) may implement
// LstatIfPossible to always report followedSymlink=false; Canonicalize
// then treats every component as a plain file and never calls
// ReadlinkIfPossible, which is the documented limitation of the Fake
// Filesystem.
type FS interface {
	Stat(name string) (os.FileInfo, error)
	LstatIfPossible(name string) (fi os.FileInfo, followedSymlink bool, err error)
	ReadlinkIfPossible(name string) (string, error)
}

// Result is the outcome of Canonicalize: the canonical form of the path,
// and the length in bytes of its leading prefix whose components actually
// exist on disk. ExistedPrefixLen == len(Canonical) means the full path
// exists.
type Result struct {
	Canonical        Path
	ExistedPrefixLen int
}

const maxSymlinkHops = 40

// Canonicalize resolves input (absolute or relative to the process cwd)
// against fsys. It never strips ".." textually: each ".." is resolved
// against the accumulator built so far, which has already had any
// preceding symlinks resolved, so the parent it computes is the real
// parent of the real location, not the lexical parent of a symlink.
//
// If a component along the way does not exist, canonicalization does not
// fail: the longest existing prefix is canonicalized and the remaining
// components are appended literally, matching how editors want to arm a
// watch on a config file that doesn't exist yet.
func Canonicalize(fsys FS, input string) (Result, error) {
	abs, err := toAbsoluteUncleaned(input)
	if err != nil {
		return Result{}, ioerr.New(input, err)
	}

	volume := filepath.VolumeName(abs)
	rest := strings.TrimPrefix(abs[len(volume):], "/")
	accumulator := volume + "/"
	existedLen := len(accumulator)

	components := strings.Split(rest, "/")
	hops := 0

	for i := 0; i < len(components); i++ {
		name := components[i]
		if name == "" || name == "." {
			continue
		}
		if name == ".." {
			accumulator = parentOf(accumulator, volume)
			existedLen = len(accumulator)
			continue
		}

		candidate := joinComponent(accumulator, name)

		fi, followed, lerr := fsys.LstatIfPossible(candidate)
		if lerr != nil {
			if errors.Is(lerr, fs.ErrNotExist) {
				return finishNonExistent(accumulator, candidate, components[i+1:]), nil
			}
			return Result{}, ioerr.NewCanonicalizing(input, candidate, lerr)
		}

		if followed && fi.Mode()&os.ModeSymlink != 0 {
			hops++
			if hops > maxSymlinkHops {
				return Result{}, ioerr.NewCanonicalizing(input, candidate,
					errors.New("too many levels of symbolic links"))
			}
			target, rerr := fsys.ReadlinkIfPossible(candidate)
			if rerr != nil {
				return Result{}, ioerr.NewCanonicalizing(input, candidate, rerr)
			}
			target = filepath.ToSlash(target)
			if filepath.IsAbs(target) {
				tVolume := filepath.VolumeName(target)
				tRest := strings.TrimPrefix(target[len(tVolume):], "/")
				accumulator = tVolume + "/"
				remaining := append(strings.Split(tRest, "/"), components[i+1:]...)
				components = remaining
				i = -1
				existedLen = len(accumulator)
				continue
			}
			remaining := append(strings.Split(target, "/"), components[i+1:]...)
			components = remaining
			i = -1
			continue
		}

		accumulator = candidate
		existedLen = len(accumulator)
	}

	return Result{Canonical: Path(accumulator), ExistedPrefixLen: existedLen}, nil
}

// toAbsoluteUncleaned makes input absolute without invoking filepath.Clean
// (which filepath.Abs does even for already-absolute input): Clean would
// textually collapse ".." before Canonicalize's own component walk ever
// sees it, and a symlink midway changes what ".." means.
func toAbsoluteUncleaned(input string) (string, error) {
	slashed := filepath.ToSlash(input)
	if filepath.IsAbs(input) {
		return slashed, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(cwd) + "/" + slashed, nil
}

// finishNonExistent appends the components that turned out not to exist
// (the one that failed the Lstat plus everything after it) literally onto
// the canonicalized existing prefix. ExistedPrefixLen covers only the
// prefix that was actually found on disk.
func finishNonExistent(existingPrefix, firstMissing string, remaining []string) Result {
	existedLen := len(existingPrefix)
	full := firstMissing
	for _, name := range remaining {
		if name == "" || name == "." {
			continue
		}
		full = joinComponent(full, name)
	}
	return Result{Canonical: Path(full), ExistedPrefixLen: existedLen}
}

func joinComponent(accumulator, name string) string {
	if strings.HasSuffix(accumulator, "/") {
		return accumulator + name
	}
	return accumulator + "/" + name
}

func parentOf(accumulator, volume string) string {
	trimmed := strings.TrimSuffix(accumulator, "/")
	if trimmed == volume || trimmed == "" {
		return volume + "/"
	}
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return volume + "/"
	}
	parent := trimmed[:idx]
	if parent == volume || parent == "" {
		return volume + "/"
	}
	return parent + "/"
}
