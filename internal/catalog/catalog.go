// Package catalog holds the static strategy preset table. Presets ship as
// built-in defaults and can be overridden or extended by a YAML file that
// is hot-reloaded on change.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"sniperd/internal/logger"
	"sniperd/internal/types"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Presets []types.StrategyPreset `yaml:"presets"`
}

// Snapshot is a read-only copy of the catalog handed to listeners.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  []types.StrategyPreset
}

// ChangeListener is invoked after every successful reload.
type ChangeListener func(Snapshot)

// Catalog is safe for concurrent readers; reloads swap the table under a
// write lock.
type Catalog struct {
	path string

	mu        sync.RWMutex
	presets   map[string]types.StrategyPreset
	order     []string
	version   int64
	listeners []ChangeListener

	watcher *fsnotify.Watcher
}

// New builds the catalog from built-in presets, merging the file at path
// over them when the path is non-empty.
func New(path string) (*Catalog, error) {
	c := &Catalog{path: strings.TrimSpace(path)}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the preset file and swaps the table. Built-ins are always
// present; file entries with a matching id replace them.
func (c *Catalog) Reload() error {
	merged := make(map[string]types.StrategyPreset)
	order := make([]string, 0, 8)
	for _, p := range builtinPresets() {
		merged[p.ID] = p
		order = append(order, p.ID)
	}
	if c.path != "" {
		raw, err := os.ReadFile(c.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("reading preset file failed (%s): %w", c.path, err)
			}
			logger.Warnf("Catalog: preset file %s missing, using built-ins only", c.path)
		} else {
			var fc fileConfig
			if err := yaml.Unmarshal(raw, &fc); err != nil {
				return fmt.Errorf("parsing preset file failed (%s): %w", c.path, err)
			}
			for _, p := range fc.Presets {
				if !p.Valid() {
					return fmt.Errorf("preset %q in %s is invalid", p.ID, c.path)
				}
				if _, exists := merged[p.ID]; !exists {
					order = append(order, p.ID)
				}
				merged[p.ID] = p
			}
		}
	}
	sort.Strings(order)

	c.mu.Lock()
	c.presets = merged
	c.order = order
	c.version++
	version := c.version
	listeners := append([]ChangeListener(nil), c.listeners...)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	logger.Infof("Catalog: loaded %d presets (version=%d)", len(merged), version)
	for _, fn := range listeners {
		go notifySafely(fn, snap)
	}
	return nil
}

func notifySafely(fn ChangeListener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Catalog listener panic: %v", r)
		}
	}()
	fn(snap)
}

// Watch starts an fsnotify loop on the preset file, reloading on writes.
// Returns immediately when no file path was configured.
func (c *Catalog) Watch() error {
	if c.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting preset watcher failed: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching preset dir failed: %w", err)
	}
	c.watcher = watcher
	go func() {
		for {
			select {
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != filepath.Clean(c.path) {
					continue
				}
				if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
					continue
				}
				if err := c.Reload(); err != nil {
					logger.Errorf("Catalog reload failed (%s): %v", evt.Name, err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("Catalog watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (c *Catalog) Close() {
	if c != nil && c.watcher != nil {
		_ = c.watcher.Close()
	}
}

// Subscribe registers a listener and immediately delivers the current
// snapshot.
func (c *Catalog) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	go notifySafely(fn, snap)
}

func (c *Catalog) snapshotLocked() Snapshot {
	presets := make([]types.StrategyPreset, 0, len(c.order))
	for _, id := range c.order {
		presets = append(presets, c.presets[id])
	}
	return Snapshot{Version: c.version, LoadedAt: time.Now(), Presets: presets}
}

// Get returns the preset with the given id.
func (c *Catalog) Get(id string) (types.StrategyPreset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presets[strings.TrimSpace(id)]
	return p, ok
}

// List returns all presets for the asset class, id-ordered.
func (c *Catalog) List(class types.AssetClass) []types.StrategyPreset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.StrategyPreset, 0, len(c.order))
	for _, id := range c.order {
		p := c.presets[id]
		if p.AssetClass == class {
			out = append(out, p)
		}
	}
	return out
}

// All returns every preset, id-ordered.
func (c *Catalog) All() []types.StrategyPreset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.StrategyPreset, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.presets[id])
	}
	return out
}
