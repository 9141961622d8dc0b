// Package configcache holds parsed configuration entries keyed by
// canonical path, so that two watches resolving to the same file share one
// cache entry by pointer identity.
package configcache

import (
	"crypto/sha256"

	"qljsconfig/internal/canonical"
	"qljsconfig/internal/vfs"
)

// Configuration is the consumer-visible result of parsing a config file's
// bytes. The loader never interprets its contents; it only hands it back
// to callers and uses its zero value as the degraded fallback on parse
// failure.
type Configuration struct {
	Globals map[string]bool
	Raw     []byte
}

// ParseConfig turns raw file bytes into a Configuration. A real linter
// supplies its own; DefaultParseConfig in the root package is a minimal
// gjson-based implementation used when the caller doesn't need anything
// fancier.
type ParseConfig func(contents []byte) (Configuration, error)

// Entry is a single cached, parsed configuration file. Callers are handed
// the same *Entry for repeated lookups of the same canonical path, so
// comparing two Entry pointers answers "do these files share a config".
type Entry struct {
	Path      canonical.Path
	Config    Configuration
	BytesHash [32]byte
	Degraded  bool
	ParseErr  error
}

// Cache maps canonical paths to their parsed entry. It is not safe for
// concurrent use; callers serialize access (the loader does this with its
// own mutex, matching the single coarse lock the whole subsystem shares).
type Cache struct {
	entries map[canonical.Path]*Entry
}

func New() *Cache {
	return &Cache{entries: make(map[canonical.Path]*Entry)}
}

// GetOrLoad returns the cached entry for path, reading and parsing it on
// first use. The returned *Entry is stable across calls for the same path.
func (c *Cache) GetOrLoad(fsys vfs.FS, parse ParseConfig, path canonical.Path) (*Entry, error) {
	if entry, ok := c.entries[path]; ok {
		return entry, nil
	}
	entry, err := load(fsys, parse, path)
	if err != nil {
		return nil, err
	}
	c.entries[path] = entry
	return entry, nil
}

// RefreshEntry re-reads path's bytes and, only if they changed from what's
// cached, reparses in place: the *Entry pointer is preserved so every
// watch referencing it observes the update. Returns changed=false when the
// bytes are byte-identical to what's cached, even if the file was
// rewritten (a no-op rewrite must not trigger a configuration change).
func (c *Cache) RefreshEntry(fsys vfs.FS, parse ParseConfig, path canonical.Path) (entry *Entry, changed bool, err error) {
	fresh, err := load(fsys, parse, path)
	if err != nil {
		return nil, false, err
	}
	existing, ok := c.entries[path]
	if !ok {
		c.entries[path] = fresh
		return fresh, true, nil
	}
	if existing.BytesHash == fresh.BytesHash {
		return existing, false, nil
	}
	existing.Config = fresh.Config
	existing.BytesHash = fresh.BytesHash
	existing.Degraded = fresh.Degraded
	existing.ParseErr = fresh.ParseErr
	return existing, true, nil
}

// Evict drops path from the cache, e.g. when the last watch referencing it
// is removed.
func (c *Cache) Evict(path canonical.Path) {
	delete(c.entries, path)
}

func load(fsys vfs.FS, parse ParseConfig, path canonical.Path) (*Entry, error) {
	contents, err := fsys.ReadFile(string(path))
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		Path:      path,
		BytesHash: sha256.Sum256(contents),
	}
	cfg, perr := parse(contents)
	if perr != nil {
		entry.Degraded = true
		entry.ParseErr = perr
		return entry, nil
	}
	entry.Config = cfg
	return entry, nil
}
