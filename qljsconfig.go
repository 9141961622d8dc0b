// Package qljsconfig loads and incrementally re-resolves the
// quick-lint-js.config nearest to a linted file, watching the filesystem
// so a long-running linter process (editor integration, daemon) learns
// about configuration changes without polling.
package qljsconfig

import (
	"sync"

	"qljsconfig/internal/canonical"
	"qljsconfig/internal/configcache"
	"qljsconfig/internal/ioerr"
	"qljsconfig/internal/logging"
	"qljsconfig/internal/platformwatch"
	"qljsconfig/internal/resolve"
	"qljsconfig/internal/vfs"
)

// Configuration is the parsed contents of a quick-lint-js.config file.
type Configuration = configcache.Configuration

// ParseConfig turns a config file's raw bytes into a Configuration.
type ParseConfig = configcache.ParseConfig

// LoadedConfig is a cached, parsed configuration file. Two watches whose
// searches resolve to the same canonical config path are handed the same
// *LoadedConfig, so pointer comparison answers "do these files share a
// config". A degraded entry (Degraded, ParseErr set) means the file exists
// but didn't parse; linting proceeds with the zero Configuration.
type LoadedConfig = configcache.Entry

// IOError is a filesystem failure tagged with the platform's own error
// code, returned from any operation below that fails.
type IOError = ioerr.IOError

// FileToLint names the file a caller wants configuration for and how to
// search for it.
type FileToLint struct {
	// Path is the file being linted. For an unsaved buffer this may be a
	// name that doesn't exist on disk; PathForConfigSearch should be set
	// in that case.
	Path string

	// PathForConfigSearch, if set, replaces Path as the path whose parent
	// directory ancestor search starts from. If empty, the search starts
	// from Path's own directory.
	PathForConfigSearch string

	// IsStdin marks a buffer with no on-disk path of its own. Combined
	// with an empty PathForConfigSearch, no ancestor search happens and
	// no configuration is found.
	IsStdin bool

	// ConfigFile, if set, names an explicit configuration file to use,
	// bypassing ancestor search entirely.
	ConfigFile string
}

// ConfigurationChange reports that a previously returned configuration for
// a watch is no longer current. ConfigFile is nil when no configuration
// applies any more; Err is non-nil when re-resolution or re-reading
// failed. Token is the value the caller registered the watch with, echoed
// back untouched.
type ConfigurationChange struct {
	WatchedPath string
	Token       any
	ConfigFile  *LoadedConfig
	Err         error
}

type watch struct {
	inputPath   string
	token       any
	req         resolve.Request
	dirsWatched []canonical.Path
	configPath  *canonical.Path
	entry       *configcache.Entry
	lastHash    [32]byte
	lastErr     error
}

// Options configures a Loader. The zero value is valid and uses the real
// OS filesystem, fsnotify-backed watching, and DefaultParseConfig.
type Options struct {
	FS          vfs.FS
	Watcher     platformwatch.Watcher
	ParseConfig ParseConfig
	Logger      *logging.Logger
}

// Loader resolves, caches, and watches configuration files for any number
// of linted files at once. All exported methods are safe for concurrent
// use; a single mutex serializes access to the watch table, the cache, and
// watcher registration together, since arming a watch and recording it in
// the table must happen atomically with respect to Refresh.
type Loader struct {
	mu      sync.Mutex
	fs      vfs.FS
	watcher platformwatch.Watcher
	cache   *configcache.Cache
	parse   ParseConfig
	logger  *logging.Logger

	watches []*watch
}

// New creates a Loader. If opts.Watcher is nil, an FSNotifyWatcher is
// created and owned (and closed by Loader.Close).
func New(opts Options) (*Loader, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = vfs.NewOS()
	}
	parse := opts.ParseConfig
	if parse == nil {
		parse = DefaultParseConfig
	}
	watcher := opts.Watcher
	if watcher == nil {
		fw, err := platformwatch.New(opts.Logger)
		if err != nil {
			return nil, err
		}
		watcher = fw
	}
	l := &Loader{
		fs:      fsys,
		watcher: watcher,
		cache:   configcache.New(),
		parse:   parse,
		logger:  opts.Logger,
	}
	return l, nil
}

// Close releases the underlying watcher.
func (l *Loader) Close() error {
	return l.watcher.Close()
}

// Dirty reports when the watcher believes something changed. Call Refresh
// in response; it batches any number of intervening filesystem mutations
// into at most one ConfigurationChange per affected watch.
func (l *Loader) Dirty() <-chan struct{} {
	return l.watcher.Dirty()
}

// TakeWatchErrors drains watch-establishment failures (the platform's
// watch-count limits, unreadable directories) accumulated since the last
// call. These are never fatal to loading: a caller typically warns and
// keeps linting with whatever observability remains.
func (l *Loader) TakeWatchErrors() []IOError {
	return l.watcher.TakeWatchErrors()
}

// LoadForFile resolves and parses the configuration for file without
// registering a watch: a one-shot lookup. A nil *LoadedConfig with a nil
// error means no configuration applies.
func (l *Loader) LoadForFile(file FileToLint) (*LoadedConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	resolution, err := resolve.Resolve(l.fs, toRequest(file))
	if err != nil {
		return nil, err
	}
	if resolution.ConfigPath == nil {
		return nil, nil
	}
	return l.cache.GetOrLoad(l.fs, l.parse, *resolution.ConfigPath)
}

// WatchAndLoadForFile resolves and parses the configuration for file, arms
// watches on every ancestor directory visited during resolution, and
// registers the file so later Refresh calls report when its configuration
// changes. token is opaque to the Loader and echoed back in every
// ConfigurationChange for this watch; several watches may share one token.
//
// Even when the initial load fails, the watch is registered: a later
// Refresh reports the recovery (for example, the config file appearing or
// becoming readable) as a change.
func (l *Loader) WatchAndLoadForFile(file FileToLint, token any) (*LoadedConfig, error) {
	return l.watchAndLoad(file.Path, toRequest(file), token)
}

// WatchAndLoadConfigFile registers a watch on an explicit config file,
// bypassing ancestor search (direct mode). Unlike ancestor search, a
// missing file here is an error, not "no config".
func (l *Loader) WatchAndLoadConfigFile(configPath string, token any) (*LoadedConfig, error) {
	return l.watchAndLoad(configPath, resolve.Request{ConfigFile: configPath}, token)
}

func (l *Loader) watchAndLoad(inputPath string, req resolve.Request, token any) (*LoadedConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := &watch{
		inputPath: inputPath,
		token:     token,
		req:       req,
	}
	l.watches = append(l.watches, w)

	resolution, err := resolve.Resolve(l.fs, req)
	for _, dir := range resolution.DirsVisited {
		_ = l.watcher.ArmDirectory(dir)
	}
	w.dirsWatched = resolution.DirsVisited
	if err != nil {
		w.lastErr = err
		return nil, err
	}

	w.configPath = resolution.ConfigPath
	if resolution.ConfigPath == nil {
		return nil, nil
	}
	entry, err := l.cache.GetOrLoad(l.fs, l.parse, *resolution.ConfigPath)
	if err != nil {
		w.lastErr = err
		return nil, err
	}
	w.entry = entry
	w.lastHash = entry.BytesHash
	return entry, nil
}

// UnwatchFile removes every watch registered for path (the nominal path
// given to WatchAndLoadForFile, or the config path given to
// WatchAndLoadConfigFile) and disarms any directories no longer needed by
// other watches. Subsequent filesystem mutations affecting only that path
// produce no change records.
func (l *Loader) UnwatchFile(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.watches[:0]
	var dropped []*watch
	for _, w := range l.watches {
		if w.inputPath == path {
			dropped = append(dropped, w)
		} else {
			kept = append(kept, w)
		}
	}
	l.watches = kept
	for _, w := range dropped {
		l.releaseWatchLocked(w)
	}
}

// UnwatchAllFiles removes every registered watch.
func (l *Loader) UnwatchAllFiles() {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := l.watches
	l.watches = nil
	for _, w := range dropped {
		l.releaseWatchLocked(w)
	}
}

func (l *Loader) releaseWatchLocked(w *watch) {
	for _, dir := range w.dirsWatched {
		l.watcher.DisarmDirectory(dir)
	}
	if w.configPath != nil && !l.pathStillReferencedLocked(*w.configPath) {
		l.cache.Evict(*w.configPath)
	}
}

func (l *Loader) pathStillReferencedLocked(path canonical.Path) bool {
	for _, w := range l.watches {
		if w.configPath != nil && *w.configPath == path {
			return true
		}
	}
	return false
}

// Refresh re-resolves every registered watch and reports which ones now
// have a different configuration: a different config file, the same file
// with different bytes, a transition to or from "no config applies", or a
// changed error status. Calling Refresh again with no intervening
// filesystem change returns nothing; mutations that net out to the
// original state (a config moved away and back, a rewrite with identical
// bytes) are suppressed by content-hash comparison.
func (l *Loader) Refresh() []ConfigurationChange {
	l.mu.Lock()
	defer l.mu.Unlock()

	var changes []ConfigurationChange
	// Each config file is re-read at most once per Refresh; remaining
	// watches on the same path diff against the already-refreshed entry.
	refreshed := make(map[canonical.Path]bool)

	for _, w := range l.watches {
		resolution, err := resolve.Resolve(l.fs, w.req)
		if err != nil {
			// Arm whatever was visited before the failure, and keep the
			// previously armed directories so a permission flip back is
			// still observed.
			for _, dir := range resolution.DirsVisited {
				if !containsPath(w.dirsWatched, dir) {
					_ = l.watcher.ArmDirectory(dir)
					w.dirsWatched = append(w.dirsWatched, dir)
				}
			}
			if !sameErr(w.lastErr, err) {
				l.warnResolution(w.inputPath, err)
				w.lastErr = err
				w.configPath = nil
				w.entry = nil
				changes = append(changes, ConfigurationChange{
					WatchedPath: w.inputPath,
					Token:       w.token,
					Err:         err,
				})
			}
			continue
		}

		for _, dir := range resolution.DirsVisited {
			if !containsPath(w.dirsWatched, dir) {
				_ = l.watcher.ArmDirectory(dir)
			}
		}
		for _, dir := range w.dirsWatched {
			if !containsPath(resolution.DirsVisited, dir) {
				l.watcher.DisarmDirectory(dir)
			}
		}
		w.dirsWatched = resolution.DirsVisited

		if resolution.ConfigPath == nil {
			if w.configPath != nil || w.lastErr != nil {
				w.configPath = nil
				w.entry = nil
				w.lastErr = nil
				changes = append(changes, ConfigurationChange{
					WatchedPath: w.inputPath,
					Token:       w.token,
				})
			}
			continue
		}

		path := *resolution.ConfigPath
		var entry *configcache.Entry
		if refreshed[path] {
			entry, err = l.cache.GetOrLoad(l.fs, l.parse, path)
		} else {
			entry, _, err = l.cache.RefreshEntry(l.fs, l.parse, path)
			if err == nil {
				refreshed[path] = true
			}
		}
		if err != nil {
			if !sameErr(w.lastErr, err) {
				l.warnResolution(w.inputPath, err)
				w.lastErr = err
				w.configPath = resolution.ConfigPath
				w.entry = nil
				changes = append(changes, ConfigurationChange{
					WatchedPath: w.inputPath,
					Token:       w.token,
					Err:         err,
				})
			}
			continue
		}

		pathChanged := w.configPath == nil || *w.configPath != path
		if pathChanged || entry.BytesHash != w.lastHash || w.lastErr != nil {
			w.lastErr = nil
			w.configPath = resolution.ConfigPath
			w.entry = entry
			w.lastHash = entry.BytesHash
			changes = append(changes, ConfigurationChange{
				WatchedPath: w.inputPath,
				Token:       w.token,
				ConfigFile:  entry,
			})
		}
	}

	return changes
}

func (l *Loader) warnResolution(path string, err error) {
	if l.logger == nil {
		return
	}
	l.logger.Warn("configuration resolution failed", map[string]string{
		"path":  path,
		"error": err.Error(),
	})
}

func toRequest(file FileToLint) resolve.Request {
	return resolve.Request{
		Path:                file.Path,
		PathForConfigSearch: file.PathForConfigSearch,
		IsStdin:             file.IsStdin,
		ConfigFile:          file.ConfigFile,
	}
}

func containsPath(paths []canonical.Path, target canonical.Path) bool {
	for _, p := range paths {
		if p == target {
			return true
		}
	}
	return false
}

func sameErr(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Error() == b.Error()
}
