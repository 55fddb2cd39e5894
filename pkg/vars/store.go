// Package vars holds the scoped variable store and the template renderer used by flows.
package vars

import "strings"

// Scope names one of the three variable namespaces.
type Scope string

// Known scopes.
const (
	Global  Scope = "global"
	Local   Scope = "local"
	Outputs Scope = "outputs"
)

// lookupOrder is the priority used by unscoped lookups.
var lookupOrder = []Scope{Local, Global, Outputs}

// ParseScope normalizes a scope name. Unknown names map to Local.
func ParseScope(name string) Scope {
	switch s := Scope(strings.ToLower(strings.TrimSpace(name))); s {
	case Global, Local, Outputs:
		return s
	default:
		return Local
	}
}

// Store is the per-run variable scope set. It is not safe for concurrent use;
// each engine owns its own store.
type Store struct {
	scopes map[Scope]map[string]interface{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset discards every variable in every scope.
func (s *Store) Reset() {
	s.scopes = map[Scope]map[string]interface{}{
		Global:  {},
		Local:   {},
		Outputs: {},
	}
}

// Set stores value under name. An unknown scope is treated as Local.
func (s *Store) Set(name string, value interface{}, scope Scope) {
	s.scopes[ParseScope(string(scope))][name] = value
}

// Lookup searches local, then global, then outputs.
func (s *Store) Lookup(name string) (interface{}, bool) {
	for _, sc := range lookupOrder {
		if v, ok := s.scopes[sc][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Get returns the highest-priority value for name, or nil when absent everywhere.
func (s *Store) Get(name string) interface{} {
	v, _ := s.Lookup(name)
	return v
}

// GetScoped looks name up in a single scope. Unknown scopes hold nothing.
func (s *Store) GetScoped(name string, scope Scope) (interface{}, bool) {
	m, ok := s.scopes[scope]
	if !ok {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}

// Has reports whether scope is one of the known scopes.
func (s *Store) Has(scope Scope) bool {
	_, ok := s.scopes[scope]
	return ok
}

// Unset removes name from scope. Missing names are ignored.
func (s *Store) Unset(name string, scope Scope) bool {
	m, ok := s.scopes[scope]
	if !ok {
		return false
	}
	if _, ok := m[name]; !ok {
		return false
	}
	delete(m, name)
	return true
}

// Snapshot returns a shallow copy of one scope.
func (s *Store) Snapshot(scope Scope) map[string]interface{} {
	src := s.scopes[scope]
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Merged flattens all scopes into one map with lookup priority applied
// (local shadows global, global shadows outputs).
func (s *Store) Merged() map[string]interface{} {
	out := make(map[string]interface{})
	for i := len(lookupOrder) - 1; i >= 0; i-- {
		for k, v := range s.scopes[lookupOrder[i]] {
			out[k] = v
		}
	}
	return out
}
