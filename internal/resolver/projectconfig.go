package resolver

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ProjectCommandConfig is one command's overrides inside a project config
// file — spec.md §4.7 layer 3.
type ProjectCommandConfig struct {
	DefaultEncoding string            `yaml:"default_encoding"`
	DefaultTimeout  int               `yaml:"default_timeout"`
	DefaultEnvs     map[string]string `yaml:"default_envs"`
}

// ProjectConfig is the parsed shape of PROJECT_COMMAND_CONFIG_FILE.
type ProjectConfig struct {
	ExtraPaths []string                        `yaml:"extra_paths"`
	Commands   map[string]ProjectCommandConfig `yaml:"commands"`
}

// projectConfigCache finds and parses the nearest project config file by
// walking upward from a working directory, caching by resolved path so
// repeated calls from the same directory don't re-stat the filesystem.
type projectConfigCache struct {
	filename string
	roots    map[string]struct{}

	mu    sync.Mutex
	cache map[string]*ProjectConfig // nil entry means "checked, absent"
}

func newProjectConfigCache(filename string, roots []string) *projectConfigCache {
	rootSet := make(map[string]struct{}, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			rootSet[abs] = struct{}{}
		}
	}
	return &projectConfigCache{filename: filename, roots: rootSet, cache: make(map[string]*ProjectConfig)}
}

// lookup walks upward from dir looking for the configured file, stopping at
// a configured root (inclusive) or the filesystem root. Returns (nil,
// false) if project config is disabled or none was found.
func (c *projectConfigCache) lookup(dir string) (*ProjectConfig, bool) {
	if c.filename == "" {
		return nil, false
	}
	cur, err := filepath.Abs(dir)
	if err != nil {
		return nil, false
	}

	for {
		if cfg, ok := c.load(filepath.Join(cur, c.filename)); ok {
			return cfg, true
		}
		if _, isRoot := c.roots[cur]; isRoot {
			return nil, false
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, false
		}
		cur = parent
	}
}

func (c *projectConfigCache) load(path string) (*ProjectConfig, bool) {
	c.mu.Lock()
	if cfg, ok := c.cache[path]; ok {
		c.mu.Unlock()
		return cfg, cfg != nil
	}
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		c.store(path, nil)
		return nil, false
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		c.store(path, nil)
		return nil, false
	}

	c.store(path, &cfg)
	return &cfg, true
}

func (c *projectConfigCache) store(path string, cfg *ProjectConfig) {
	c.mu.Lock()
	c.cache[path] = cfg
	c.mu.Unlock()
}
