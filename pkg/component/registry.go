// Package component caches reusable step macros ("custom components").
package component

import (
	"context"
	"sync"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// Definition is a custom component: a named step list with default config.
type Definition struct {
	Type          string                 `json:"type" yaml:"type"`
	Name          string                 `json:"name" yaml:"name"`
	Steps         []flow.Step            `json:"steps" yaml:"steps"`
	Schema        map[string]interface{} `json:"schema" yaml:"schema"`
	DefaultConfig map[string]interface{} `json:"default_config" yaml:"default_config"`
	Enabled       bool                   `json:"enabled" yaml:"enabled"`
}

// Repository lists enabled component definitions keyed by type.
type Repository interface {
	ListEnabled(ctx context.Context) (map[string]Definition, error)
}

// Registry loads definitions once and serves them for its lifetime.
type Registry struct {
	repo Repository

	once sync.Once
	defs map[string]Definition
}

// NewRegistry creates a registry. repo may be nil.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// Lookup returns the definition for typ. The first call loads every enabled
// definition; a load failure is logged and leaves the cache empty.
func (r *Registry) Lookup(ctx context.Context, typ string) (Definition, bool) {
	r.load(ctx)
	def, ok := r.defs[typ]
	return def, ok
}

func (r *Registry) load(ctx context.Context) {
	r.once.Do(func() {
		r.defs = map[string]Definition{}
		if r.repo == nil {
			return
		}
		defs, err := r.repo.ListEnabled(ctx)
		if err != nil {
			logger.Warn("failed to load custom component definitions: %v", err)
			return
		}
		r.defs = defs
		logger.Debug("loaded %d custom component definitions", len(defs))
	})
}
