package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current configuration snapshot. Readers call Snapshot once
// per unit of work so a reload never changes a config mid-tick.
type Store struct {
	path    string
	current atomic.Pointer[Config]
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore returns a store that always serves cfg.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Reload re-reads the file. The previous snapshot is kept when the new one
// fails to load or validate.
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	s.current.Store(cfg)
	return nil
}

// Serve watches the config file and reloads it on change until ctx is done.
func (s *Store) Serve(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, editors and config management replace the file
	// rather than writing it in place.
	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	slog.Info("Watching config file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if err := s.Reload(); err != nil {
				slog.Error("Failed to reload config, keeping previous", "path", target, "error", err)
				continue
			}
			cfg := s.Snapshot()
			slog.Info("Reloaded config", "path", target, "entries", len(cfg.Entries), "whitelists", len(cfg.Whitelists))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}
