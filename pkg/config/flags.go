package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Flags are runtime switches read on every request.
type Flags struct {
	maintenance  atomic.Bool
	forceVanilla atomic.Bool
}

// NewFlags creates flags initialized from c.
func NewFlags(c FlagsConfig) *Flags {
	f := &Flags{}
	f.Set(c)
	return f
}

// Set replaces every flag.
func (f *Flags) Set(c FlagsConfig) {
	f.maintenance.Store(c.Maintenance)
	f.forceVanilla.Store(c.ForceVanilla)
}

// Maintenance reports whether generation is switched off.
func (f *Flags) Maintenance() bool { return f != nil && f.maintenance.Load() }

// ForceVanilla reports whether every generation routes to the vanilla model.
func (f *Flags) ForceVanilla() bool { return f != nil && f.forceVanilla.Load() }

// Watch reloads the flags whenever the config file at path changes. The
// parent directory is watched so editors that replace the file by rename
// are picked up. Blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, flags *Flags) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	slog.Info("Watching config for flag changes", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				slog.Warn("Ignoring invalid config change", "path", abs, "error", err)
				continue
			}
			flags.Set(cfg.Flags)
			slog.Info("Flags reloaded", "maintenance", cfg.Flags.Maintenance, "forceVanilla", cfg.Flags.ForceVanilla)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}
