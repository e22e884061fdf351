package config

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active configuration behind an atomic pointer so that
// analysis runs always see a complete config, never a half-applied reload.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a Store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Get returns the active configuration.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Set replaces the active configuration.
func (s *Store) Set(cfg *Config) {
	s.current.Store(cfg)
}

// Watcher watches the config file for changes and hot-reloads it into a Store.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *Store
	path    string
}

// NewWatcher creates a file watcher for the given config path.
func NewWatcher(store *Store, path string) (*Watcher, error) {
	if path == "" {
		path = DefaultPath()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("cannot watch %q: %w", path, err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	return &Watcher{watcher: fw, store: store, path: path}, nil
}

// Run watches for file changes and reloads config. Blocks until ctx is
// cancelled. A reload that fails validation keeps the previous config active.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	// Debounce: wait 500ms after last write before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cfg, err := Load(w.path)
					if err != nil {
						fmt.Fprintf(os.Stderr, "hot-reload failed: %v\n", err)
						return
					}
					w.store.Set(cfg)
					fmt.Fprintf(os.Stderr, "hot-reload: config reloaded\n")
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}
