package component

import (
	"context"
	"errors"
	"testing"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
)

type mockRepo struct {
	calls int
	defs  map[string]Definition
	err   error
}

func (m *mockRepo) ListEnabled(context.Context) (map[string]Definition, error) {
	m.calls++
	return m.defs, m.err
}

func TestRegistry_LoadsOnce(t *testing.T) {
	repo := &mockRepo{defs: map[string]Definition{
		"login": {Type: "login", Name: "Login", Steps: []flow.Step{{"type": "click"}}},
	}}
	r := NewRegistry(repo)
	ctx := context.Background()

	def, ok := r.Lookup(ctx, "login")
	if !ok || def.Name != "Login" || len(def.Steps) != 1 {
		t.Fatalf("Lookup(login) = %+v, %v", def, ok)
	}
	if _, ok := r.Lookup(ctx, "logout"); ok {
		t.Error("Lookup(logout) should miss")
	}
	if repo.calls != 1 {
		t.Errorf("repository called %d times, want 1", repo.calls)
	}
}

func TestRegistry_LoadErrorLeavesEmptyCache(t *testing.T) {
	repo := &mockRepo{err: errors.New("db down")}
	r := NewRegistry(repo)

	if _, ok := r.Lookup(context.Background(), "login"); ok {
		t.Error("Lookup() should miss after a load error")
	}
	r.Lookup(context.Background(), "login")
	if repo.calls != 1 {
		t.Errorf("repository called %d times after failure, want 1", repo.calls)
	}
}

func TestRegistry_NilRepository(t *testing.T) {
	r := NewRegistry(nil)
	if _, ok := r.Lookup(context.Background(), "login"); ok {
		t.Error("nil repository should yield an empty registry")
	}
}
