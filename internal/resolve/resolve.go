// Package resolve walks a file's ancestor directories looking for the
// well-known quick-lint-js.config file, the way an editor's "find the
// config for this buffer" step works.
package resolve

import (
	"path/filepath"
	"strings"

	"qljsconfig/internal/canonical"
	"qljsconfig/internal/ioerr"
	"qljsconfig/internal/vfs"
)

// ConfigFileName is the well-known configuration filename searched for in
// each ancestor directory.
const ConfigFileName = "quick-lint-js.config"

// Request mirrors the externally-visible FileToLint: the file being
// linted, the directory search should start from, whether it's an
// unsaved/stdin buffer, and an optional explicit config file that bypasses
// ancestor search entirely.
type Request struct {
	Path                string
	PathForConfigSearch string
	IsStdin             bool
	ConfigFile          string
}

// Resolution is the result of a search: the canonical config path found
// (nil if none), and every directory that was visited along the way, so
// the caller can arm watches on all of them regardless of whether the
// search succeeded.
type Resolution struct {
	ConfigPath  *canonical.Path
	DirsVisited []canonical.Path
}

// Resolve implements the search order: an explicit ConfigFile always wins
// and is not subject to ancestor search; stdin input with no explicit
// search path yields no config and no directories to watch; otherwise each
// ancestor directory from the search path's parent up to the filesystem
// root is tested in turn for ConfigFileName, stopping at the first
// regular-file match. A directory shadowing the filename is reported as
// ErrNotRegularFile rather than silently skipped.
func Resolve(fsys vfs.FS, req Request) (Resolution, error) {
	if req.ConfigFile != "" {
		result, err := fsys.Canonicalize(req.ConfigFile)
		if err != nil {
			return Resolution{}, err
		}
		watchDir := nearestExistingDir(result)
		fi, err := fsys.Stat(string(result.Canonical))
		if err != nil {
			// The file is still watched (via its nearest existing
			// ancestor) so its later creation is observed.
			return Resolution{DirsVisited: []canonical.Path{watchDir}}, err
		}
		if !fi.Mode().IsRegular() {
			return Resolution{DirsVisited: []canonical.Path{watchDir}}, ioerr.ErrNotRegularFile(req.ConfigFile)
		}
		path := result.Canonical
		return Resolution{
			ConfigPath:  &path,
			DirsVisited: []canonical.Path{watchDir},
		}, nil
	}

	searchPath := req.PathForConfigSearch
	if searchPath == "" {
		if req.IsStdin {
			return Resolution{}, nil
		}
		searchPath = req.Path
	}
	if searchPath == "" {
		return Resolution{}, nil
	}

	searchResult, err := fsys.Canonicalize(searchPath)
	if err != nil {
		return Resolution{}, err
	}
	dir := parentPath(searchResult.Canonical)

	// Directories beyond the canonical path's existing prefix don't exist
	// yet and can't be armed directly; their nearest existing ancestor is
	// part of the same walk and covers them. Once such a directory comes
	// into existence, the next re-resolution reports it and the caller
	// arms it then.
	var visited []canonical.Path
	for {
		if dirExists(dir, searchResult.ExistedPrefixLen) {
			visited = append(visited, dir)
		}
		candidate := joinPath(dir, ConfigFileName)
		fi, err := fsys.Stat(string(candidate))
		if err == nil {
			if !fi.Mode().IsRegular() {
				return Resolution{DirsVisited: visited}, ioerr.ErrNotRegularFile(string(candidate))
			}
			result := candidate
			return Resolution{ConfigPath: &result, DirsVisited: visited}, nil
		}
		if ioerr.Classify(err) != ioerr.KindNotFound {
			return Resolution{DirsVisited: visited}, err
		}

		parent := parentPath(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return Resolution{DirsVisited: visited}, nil
}

// dirExists reports whether dir falls within the existing prefix of the
// canonicalized path it was derived from. Ancestors at or below the prefix
// length exist; anything longer is part of the not-yet-created tail.
func dirExists(dir canonical.Path, existedPrefixLen int) bool {
	return len(string(dir)) <= existedPrefixLen
}

// nearestExistingDir returns the deepest ancestor directory of result's
// canonical path that exists on disk.
func nearestExistingDir(result canonical.Result) canonical.Path {
	dir := parentPath(result.Canonical)
	for !dirExists(dir, result.ExistedPrefixLen) {
		parent := parentPath(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}

func parentPath(path canonical.Path) canonical.Path {
	s := string(path)
	if s == "" || s == "/" {
		return canonical.Path("/")
	}
	trimmed := strings.TrimSuffix(s, "/")
	dir := filepath.ToSlash(filepath.Dir(trimmed))
	if dir == "." {
		dir = "/"
	}
	return canonical.Path(dir)
}

func joinPath(dir canonical.Path, name string) canonical.Path {
	s := string(dir)
	if strings.HasSuffix(s, "/") {
		return canonical.Path(s + name)
	}
	return canonical.Path(s + "/" + name)
}
