package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	scanerrors "scanhub/pkg/errors"
	"scanhub/pkg/logger"
)

// Catalog holds the effective invocation config of every canonical tool:
// the built-in defaults overlaid with YAML files from a config directory.
type Catalog struct {
	registry *Registry
	dir      string
	log      *logger.Logger
	validate *validator.Validate

	mutex   sync.RWMutex
	configs map[ToolName]ToolConfig
}

func NewCatalog(registry *Registry, dir string, log *logger.Logger) (*Catalog, error) {
	c := &Catalog{
		registry: registry,
		dir:      dir,
		log:      log,
		validate: validator.New(),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds the catalog from defaults and the config directory. A file
// that fails to parse or validate is skipped and logged; the rest still load.
func (c *Catalog) Reload() error {
	configs := DefaultConfigs()

	if c.dir != "" {
		entries, err := os.ReadDir(c.dir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read tool config directory %s: %w", c.dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !isYAML(entry.Name()) {
				continue
			}
			path := filepath.Join(c.dir, entry.Name())
			name, cfg, err := c.loadFile(path, configs)
			if err != nil {
				c.log.WithError(err).WithField("file", path).Error("Failed to load tool config")
				continue
			}
			configs[name] = cfg
		}
	}

	c.mutex.Lock()
	c.configs = configs
	c.mutex.Unlock()
	return nil
}

func (c *Catalog) loadFile(path string, current map[ToolName]ToolConfig) (ToolName, ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ToolConfig{}, err
	}

	var head struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return "", ToolConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if head.Name == "" {
		head.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	name, err := c.registry.Resolve(head.Name)
	if err != nil {
		return "", ToolConfig{}, err
	}

	// Fields absent from the file keep their default values.
	cfg := clone(current[name])
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", ToolConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.Name = string(name)

	if err := c.validate.Struct(cfg); err != nil {
		return "", ToolConfig{}, scanerrors.NewConfigError(string(name), path, err.Error())
	}
	return name, cfg, nil
}

// Get returns a copy of the tool's config.
func (c *Catalog) Get(name ToolName) (ToolConfig, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	cfg, ok := c.configs[name]
	if !ok {
		return ToolConfig{}, false
	}
	return clone(cfg), true
}

func (c *Catalog) Enabled(name ToolName) bool {
	cfg, ok := c.Get(name)
	return ok && !cfg.Disabled
}

// Watch reloads the catalog whenever the config directory changes, until ctx
// is done. Bursts of events are coalesced.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create tool config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}

	go func() {
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if isYAML(event.Name) {
					debounce = time.After(200 * time.Millisecond)
				}
			case <-debounce:
				debounce = nil
				if err := c.Reload(); err != nil {
					c.log.WithError(err).Error("Failed to reload tool configs")
					continue
				}
				c.log.WithFields(logger.Fields{"dir": c.dir}).Info("Tool configs reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.WithError(err).Warn("Tool config watcher error")
			}
		}
	}()

	return nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
