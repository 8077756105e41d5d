// Package plugin defines the contract between the host CLI and report
// plugins, and the registry the host loads them from.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/ppiankov/nanoreport/internal/settings"
)

// ErrUnknownPlugin is returned when no plugin is registered under a name
var ErrUnknownPlugin = errors.New("unknown report plugin")

// Reporter is a loaded report plugin
type Reporter interface {
	// Render produces the report. Errors are returned to the host as-is.
	Render(ctx context.Context) error
}

// Factory constructs a Reporter from parsed settings and the host logger
type Factory func(values settings.Values, logger *slog.Logger) (Reporter, error)

// Definition describes a report plugin
type Definition struct {
	Name        string
	Description string
	Version     string
	Settings    *settings.Schema
	Config      any // Settings struct used for JSON schema generation
	New         Factory
}

// Registry holds the plugins known to the host
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Definition
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Definition)}
}

// Register adds a plugin definition
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("plugin name is required")
	}
	if def.New == nil {
		return fmt.Errorf("plugin %s: no factory", def.Name)
	}
	if err := def.Settings.Validate(); err != nil {
		return fmt.Errorf("plugin %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[def.Name]; exists {
		return fmt.Errorf("plugin %s already registered", def.Name)
	}
	r.plugins[def.Name] = def
	return nil
}

// Get returns the definition registered under name
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.plugins[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	return def, nil
}

// Names lists registered plugins, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load checks required settings and constructs the plugin's reporter
func (r *Registry) Load(name string, values settings.Values, logger *slog.Logger) (Reporter, error) {
	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if err := settings.CheckRequired(def.Settings, values); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return def.New(values, logger.With("reporter", name))
}

// ConfigSchema returns the JSON schema of the plugin's settings
func ConfigSchema(def Definition) ([]byte, error) {
	if def.Config == nil {
		return []byte("{}"), nil
	}

	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(def.Config)
	schema.Title = def.Name
	schema.Description = def.Description

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
