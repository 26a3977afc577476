// Package actor models the simulated client identities that drive workflows.
package actor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/wesleyorama2/rhino/internal/sequence"
)

// Actor is one simulated client identity.
type Actor struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"-" yaml:"password,omitempty"`
	Token    string `json:"-" yaml:"token,omitempty"`
}

// HasToken reports whether the actor authenticates with a bearer token.
func (a Actor) HasToken() bool { return a.Token != "" }

// HasCredentials reports whether the actor carries basic-auth credentials.
func (a Actor) HasCredentials() bool { return a.Username != "" }

func (a Actor) String() string {
	if a.Username != "" {
		return a.Username
	}
	return a.ID
}

// Pool hands out actors to the runner.
type Pool interface {
	// Take returns the next actor to pair with a workflow.
	Take() (Actor, error)
	// Has reports whether at least n actors are available.
	Has(n int) bool
}

// StaticPool is a Pool over a fixed set of actors, handed out round-robin.
type StaticPool struct {
	actors []Actor
	seq    *sequence.Cyclic[Actor]
}

// NewStaticPool creates a pool over actors. Actors without an ID get a
// generated one.
func NewStaticPool(actors []Actor) (*StaticPool, error) {
	list := make([]Actor, len(actors))
	for i, a := range actors {
		if a.ID == "" {
			if a.Username != "" {
				a.ID = a.Username
			} else {
				a.ID = uuid.NewString()
			}
		}
		list[i] = a
	}

	seq, err := sequence.New(list)
	if err != nil {
		return nil, fmt.Errorf("actor pool: %w", err)
	}
	return &StaticPool{actors: list, seq: seq}, nil
}

// Anonymous returns a pool of n credential-less actors with random IDs.
func Anonymous(n int) (*StaticPool, error) {
	actors := make([]Actor, n)
	for i := range actors {
		actors[i] = Actor{ID: uuid.NewString()}
	}
	return NewStaticPool(actors)
}

func (p *StaticPool) Take() (Actor, error) {
	return p.seq.Next()
}

func (p *StaticPool) Has(n int) bool {
	return len(p.actors) >= n
}

// Actors returns a copy of the pool's actors.
func (p *StaticPool) Actors() []Actor {
	return append([]Actor(nil), p.actors...)
}

// Close stops the pool. Take fails afterwards.
func (p *StaticPool) Close() {
	p.seq.Stop()
}
