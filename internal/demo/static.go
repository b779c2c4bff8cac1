package demo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/hubdash/internal/core/hub"
)

// StaticModule is a module described entirely in YAML: fixed state plus
// events answered with a canned reply.
type StaticModule struct {
	*hub.State

	name   string
	events map[string]EventSpec
	hub    Emitter
}

// ModuleSpec is one entry of the modules file.
type ModuleSpec struct {
	Name   string               `yaml:"name"`
	Props  map[string]any       `yaml:"props"`
	Data   map[string]any       `yaml:"data"`
	Events map[string]EventSpec `yaml:"events"`
}

// EventSpec answers the event's callback with Reply and, when Emit is set,
// publishes that event with the original arguments.
type EventSpec struct {
	Reply any    `yaml:"reply"`
	Emit  string `yaml:"emit"`
}

type modulesFile struct {
	Modules []ModuleSpec `yaml:"modules"`
}

// ParseModules decodes a modules document.
func ParseModules(raw []byte) ([]ModuleSpec, error) {
	var f modulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("demo: parse modules: %w", err)
	}
	seen := make(map[string]bool, len(f.Modules))
	for i, m := range f.Modules {
		if m.Name == "" {
			return nil, fmt.Errorf("demo: module %d has no name", i)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("demo: module %q declared twice", m.Name)
		}
		seen[m.Name] = true
	}
	return f.Modules, nil
}

// LoadModules reads path and builds its modules.
func LoadModules(path string, h Emitter) ([]*StaticModule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("demo: read modules: %w", err)
	}
	specs, err := ParseModules(raw)
	if err != nil {
		return nil, err
	}
	out := make([]*StaticModule, 0, len(specs))
	for _, s := range specs {
		out = append(out, NewStaticModule(s, h))
	}
	return out, nil
}

func NewStaticModule(spec ModuleSpec, h Emitter) *StaticModule {
	return &StaticModule{
		State:  hub.NewState(spec.Props, spec.Data),
		name:   spec.Name,
		events: spec.Events,
		hub:    h,
	}
}

func (m *StaticModule) Name() string { return m.name }

func (m *StaticModule) Events() map[string]hub.Handler {
	out := make(map[string]hub.Handler, len(m.events))
	for name, spec := range m.events {
		out[name] = func(args ...any) error {
			rest, cb := hub.PopCallback(args)
			if cb != nil {
				cb(nil, spec.Reply)
			}
			if spec.Emit != "" {
				return m.hub.Emit(spec.Emit, rest...)
			}
			return nil
		}
	}
	return out
}
