package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/rhino/internal/actor"
)

func TestSession_ActorScopeIsolation(t *testing.T) {
	reg := NewRegistry()
	alice := New(actor.Actor{ID: "alice"}, reg)
	bob := New(actor.Actor{ID: "bob"}, reg)

	alice.Add("cart", 3)
	_, ok := bob.Get("cart")
	assert.False(t, ok, "actor-scoped write leaked to another actor")

	alice.Store(ScopeSimulation).Add("token", "t1")
	v, ok := bob.Store(ScopeSimulation).Get("token")
	require.True(t, ok)
	assert.Equal(t, "t1", v)
}

func TestSession_AddOverwrites(t *testing.T) {
	s := New(actor.Actor{ID: "a"}, nil)
	s.Add("k", 1).Add("k", 2)

	v, ok := Value[int](s, "k")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = Value[string](s, "k")
	assert.False(t, ok)
}

func TestSession_WithOwner(t *testing.T) {
	reg := NewRegistry()
	s := New(actor.Actor{ID: "a"}, reg)
	admin := s.WithOwner("admin")

	admin.Shared().Add("k", "admin-value")
	_, ok := s.Shared().Get("k")
	assert.False(t, ok)

	admin.Add("local", true)
	_, ok = s.Get("local")
	assert.True(t, ok, "owner view must share the actor-scoped store")
}

func TestSession_Fork(t *testing.T) {
	s := New(actor.Actor{ID: "a"}, nil)
	s.Add("seed", 1)
	s.Store(ScopeActor).List("items").Append("x")

	f := s.Fork()
	f.Add("seed", 2)
	f.Store(ScopeActor).List("items").Append("y")

	v, _ := Value[int](s, "seed")
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, s.Store(ScopeActor).List("items").Len())
	assert.Equal(t, 2, f.Store(ScopeActor).List("items").Len())
}

func TestList_ConcurrentAppend(t *testing.T) {
	store := NewStore()
	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				store.List("results").Append(w*perWorker + i)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, store.List("results").Len())
}

func TestStore_Snapshot(t *testing.T) {
	store := NewStore()
	store.Add("name", "rhino")
	store.List("ids").Append(1)
	store.List("ids").Append(2)

	snap := store.Snapshot()
	assert.Equal(t, "rhino", snap["name"])
	assert.Equal(t, []any{1, 2}, snap["ids"])
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in   string
		want Scope
		ok   bool
	}{
		{"", ScopeActor, true},
		{"actor", ScopeActor, true},
		{"simulation", ScopeSimulation, true},
		{"global", ScopeSimulation, true},
		{"bogus", ScopeActor, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseScope(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseScope(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
