// Package store provides the element and component repositories used by the
// executor: an in-memory store loaded from YAML files and a SQL store over
// postgres or sqlite.
package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/component"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
)

// MemoryStore keeps elements and components in memory. Usage counters live
// only as long as the store. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	elements   map[int64]core.Element
	components map[string]component.Definition
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		elements:   map[int64]core.Element{},
		components: map[string]component.Definition{},
	}
}

// AddElement stores el, replacing any element with the same id.
func (s *MemoryStore) AddElement(el core.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[el.ID] = el
}

// AddComponent stores def under its type.
func (s *MemoryStore) AddComponent(def component.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[def.Type] = def
}

// ActiveElement implements selector.ElementRepository.
func (s *MemoryStore) ActiveElement(_ context.Context, id int64) (*core.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[id]
	if !ok || !el.Active {
		return nil, nil
	}
	el.Config = flow.DeepCopy(el.Config).(map[string]interface{})
	return &el, nil
}

// IncrementUsage implements selector.ElementRepository.
func (s *MemoryStore) IncrementUsage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[id]
	if !ok {
		return fmt.Errorf("element %d not found", id)
	}
	el.UsageCount++
	s.elements[id] = el
	return nil
}

// Usage returns the usage counter of element id.
func (s *MemoryStore) Usage(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elements[id].UsageCount
}

// ListEnabled implements component.Repository.
func (s *MemoryStore) ListEnabled(_ context.Context) (map[string]component.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]component.Definition, len(s.components))
	for typ, def := range s.components {
		if def.Enabled {
			out[typ] = def
		}
	}
	return out, nil
}

type elementsFile struct {
	Elements []struct {
		ID     int64                  `yaml:"id"`
		Name   string                 `yaml:"name"`
		Type   string                 `yaml:"element_type"`
		Config map[string]interface{} `yaml:"config"`
		Active *bool                  `yaml:"is_active"`
		Usage  int                    `yaml:"usage_count"`
	} `yaml:"elements"`
}

type componentsFile struct {
	Components []struct {
		Type          string                 `yaml:"type"`
		Name          string                 `yaml:"name"`
		Steps         []interface{}          `yaml:"steps"`
		DefaultConfig map[string]interface{} `yaml:"default_config"`
		Enabled       *bool                  `yaml:"enabled"`
	} `yaml:"components"`
}

// LoadElementsFile adds the elements listed in a YAML file. Elements are
// active unless is_active is false.
func (s *MemoryStore) LoadElementsFile(path string) error {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided repository file
	if err != nil {
		return err
	}
	var f elementsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for i, e := range f.Elements {
		if e.ID == 0 {
			return fmt.Errorf("%s: element %d has no id", path, i+1)
		}
		cfg, _ := flow.Normalize(e.Config).(map[string]interface{})
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		s.AddElement(core.Element{
			ID:         e.ID,
			Name:       e.Name,
			Type:       e.Type,
			Config:     cfg,
			Active:     e.Active == nil || *e.Active,
			UsageCount: e.Usage,
		})
	}
	return nil
}

// LoadComponentsFile adds the custom components listed in a YAML file.
// Components are enabled unless enabled is false.
func (s *MemoryStore) LoadComponentsFile(path string) error {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided repository file
	if err != nil {
		return err
	}
	var f componentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for i, c := range f.Components {
		if c.Type == "" {
			return fmt.Errorf("%s: component %d has no type", path, i+1)
		}
		steps, err := flow.ToSteps(flow.Normalize(c.Steps))
		if err != nil {
			return fmt.Errorf("%s: component %s: %w", path, c.Type, err)
		}
		defaults, _ := flow.Normalize(c.DefaultConfig).(map[string]interface{})
		s.AddComponent(component.Definition{
			Type:          c.Type,
			Name:          c.Name,
			Steps:         steps,
			DefaultConfig: defaults,
			Enabled:       c.Enabled == nil || *c.Enabled,
		})
	}
	return nil
}
