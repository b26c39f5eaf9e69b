// Package types holds the notification type registry: named types that
// carry a severity level and control whether a notification is rendered
// as a toast and whether it triggers the audio cue.
package types

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/opsdash/notify-stream/internal/protocol"
)

// DefaultType is consulted for events whose type is empty or unregistered.
const DefaultType = "default"

// Definition describes a registered notification type. Web and Sound are
// tri-state so an override file can distinguish "unset" from "false":
// nil Web means enabled, nil Sound follows Web.
type Definition struct {
	VerboseName string         `yaml:"verbose_name"`
	Level       protocol.Level `yaml:"level"`
	Web         *bool          `yaml:"web"`
	Sound       *bool          `yaml:"sound"`
}

// WebEnabled reports whether events of this type are rendered as toasts.
func (d Definition) WebEnabled() bool {
	return d.Web == nil || *d.Web
}

// SoundEnabled reports whether events of this type trigger the audio cue.
func (d Definition) SoundEnabled() bool {
	if d.Sound != nil {
		return *d.Sound
	}
	return d.WebEnabled()
}

// Registry maps type names to definitions. Safe for concurrent use; the
// reconciler reads it from the delivery path while Watch may replace
// entries from a reload.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	logger *slog.Logger
}

// NewRegistry creates a registry seeded with the built-in types.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		defs:   make(map[string]Definition),
		logger: logger,
	}
	for name, def := range builtins() {
		r.defs[name] = def
	}
	return r
}

func builtins() map[string]Definition {
	return map[string]Definition{
		DefaultType: {VerboseName: "Default Type", Level: protocol.LevelInfo},
		"info":      {VerboseName: "Info", Level: protocol.LevelInfo},
		"success":   {VerboseName: "Success", Level: protocol.LevelSuccess},
		"warning":   {VerboseName: "Warning", Level: protocol.LevelWarning},
		"error":     {VerboseName: "Error", Level: protocol.LevelError},
	}
}

// Register adds or replaces a type definition. An empty level defaults
// to info; an invalid one is rejected.
func (r *Registry) Register(name string, def Definition) error {
	if name == "" {
		return fmt.Errorf("notification type name must not be empty")
	}
	if def.Level == "" {
		def.Level = protocol.LevelInfo
	}
	if !def.Level.Valid() {
		return fmt.Errorf("notification type %q: invalid level %q", name, def.Level)
	}
	if def.VerboseName == "" {
		def.VerboseName = name
	}

	r.mu.Lock()
	r.defs[name] = def
	r.mu.Unlock()

	return nil
}

// Unregister removes a type. The default type cannot be removed.
func (r *Registry) Unregister(name string) error {
	if name == DefaultType {
		return fmt.Errorf("cannot unregister the %q type", DefaultType)
	}

	r.mu.Lock()
	delete(r.defs, name)
	r.mu.Unlock()

	return nil
}

// Lookup returns the definition for a type name, falling back to the
// default type for empty or unregistered names.
func (r *Registry) Lookup(name string) Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.defs[name]; ok {
		return def
	}
	return r.defs[DefaultType]
}

// Names returns the registered type names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

// LoadFile reads a YAML override file mapping type names to definitions
// and registers each entry. Entries that fail validation abort the load
// so a half-applied file never goes live.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading types file: %w", err)
	}

	var overrides map[string]Definition
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing types file: %w", err)
	}

	// Validate everything before touching the live registry.
	for name, def := range overrides {
		if name == "" {
			return fmt.Errorf("types file %s: empty type name", path)
		}
		if def.Level != "" && !def.Level.Valid() {
			return fmt.Errorf("types file %s: type %q has invalid level %q", path, name, def.Level)
		}
	}

	for name, def := range overrides {
		if err := r.Register(name, def); err != nil {
			return err
		}
	}

	r.logger.Info("notification types loaded",
		slog.String("path", path),
		slog.Int("overrides", len(overrides)),
	)
	return nil
}

// Watch reloads the override file whenever it changes. Blocks until the
// context is cancelled. Reload failures are logged and the previous
// definitions stay live.
func (r *Registry) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors that replace
	// the file on save (rename + create) would otherwise drop the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching types dir: %w", err)
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := r.LoadFile(path); err != nil {
				r.logger.Warn("reloading notification types",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}
			r.logger.Warn("types watcher error", slog.String("error", err.Error()))
		}
	}
}
