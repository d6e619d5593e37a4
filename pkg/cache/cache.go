package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybasham/aiagent/pkg/types"
)

// FileEntry is the trusted view of one deployed file.
type FileEntry struct {
	Size       int64  `json:"size"`
	Mtime      int64  `json:"mtime"`
	DeployedAt string `json:"deployed_at,omitempty"`
}

// ScriptEntry records one executed SQL file.
type ScriptEntry struct {
	Mtime      int64  `json:"mtime"`
	ExecutedAt string `json:"executed_at,omitempty"`
}

// Cache is the persistent trust layer for incremental runs. It is loaded
// at run start, mutated in memory by the orchestrator only, and rewritten
// atomically after all configured phases succeed. A partial failure leaves
// the previous file intact.
type Cache struct {
	Files          map[string]FileEntry   `json:"files"`
	LastDeployment string                 `json:"last_deployment,omitempty"`
	DBScripts      map[string]ScriptEntry `json:"db_scripts"`
	FileMappings   map[string]int64       `json:"file_mappings"`
	Prebuild       map[string]int64       `json:"prebuild"`

	path   string
	loaded bool // true when the file existed and parsed at load time
}

// PathFor derives the cache file name from the configuration file's stem:
// ".deploy_cache_<stem>.json" beside the configuration.
func PathFor(configPath string) string {
	base := filepath.Base(configPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(configPath), ".deploy_cache_"+stem+".json")
}

// Load reads the cache beside the given configuration file. A missing or
// unreadable cache is not an error: the returned cache is empty and the
// engine falls back to a full comparison. The CacheError, when non-nil, is
// informational.
func Load(configPath string) (*Cache, *types.CacheError) {
	c := &Cache{path: PathFor(configPath)}
	c.init()

	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, &types.CacheError{Path: c.path, Err: err}
	}
	if err := json.Unmarshal(raw, c); err != nil {
		// Corrupt cache: discard and do a full comparison.
		empty := &Cache{path: c.path}
		empty.init()
		return empty, &types.CacheError{Path: c.path, Err: fmt.Errorf("corrupt cache discarded: %w", err)}
	}
	c.init()
	c.loaded = true
	return c, nil
}

func (c *Cache) init() {
	if c.Files == nil {
		c.Files = make(map[string]FileEntry)
	}
	if c.DBScripts == nil {
		c.DBScripts = make(map[string]ScriptEntry)
	}
	if c.FileMappings == nil {
		c.FileMappings = make(map[string]int64)
	}
	if c.Prebuild == nil {
		c.Prebuild = make(map[string]int64)
	}
}

// Path returns the on-disk location of the cache file.
func (c *Cache) Path() string { return c.path }

// Exists reports whether a prior cache was present and readable at load
// time. The sync engine only trusts the cached destination view when this
// is true.
func (c *Cache) Exists() bool { return c.loaded }

// SetFile records the source-observed size and mtime for a deployed path.
func (c *Cache) SetFile(rel string, size, mtime int64) {
	c.Files[rel] = FileEntry{
		Size:       size,
		Mtime:      mtime,
		DeployedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// DeleteFile drops a path from the trusted view.
func (c *Cache) DeleteFile(rel string) {
	delete(c.Files, rel)
}

// ScriptUpToDate reports whether the SQL file at absPath was already
// executed with the given mtime.
func (c *Cache) ScriptUpToDate(absPath string, mtime int64) bool {
	entry, ok := c.DBScripts[absPath]
	return ok && entry.Mtime == mtime
}

// SetScript records a successfully executed SQL file.
func (c *Cache) SetScript(absPath string, mtime int64) {
	c.DBScripts[absPath] = ScriptEntry{
		Mtime:      mtime,
		ExecutedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Save serializes the cache to a temporary sibling and renames it over the
// real file. Called only after every configured phase succeeded.
func (c *Cache) Save() error {
	c.LastDeployment = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return &types.CacheError{Path: c.path, Err: err}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &types.CacheError{Path: c.path, Err: err}
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return &types.CacheError{Path: c.path, Err: err}
	}
	return nil
}
