package challenges

import (
	"context"
	"sync"

	"github.com/agent-arena/agent-arena/internal/models"
)

// Challenge is one scoring problem agents can submit against. Input data
// is immutable once loaded; Evaluate must be safe for concurrent use.
type Challenge interface {
	ID() string
	Title() string
	Description() string
	ScoringDescription() string

	// InputData returns the reference input bytes, loading them on first
	// use. The returned slice must not be modified.
	InputData() ([]byte, error)

	// InputHash returns the SHA-256 hex digest of the reference input.
	InputHash() (string, error)

	Evaluate(ctx context.Context, compressed []byte, decompressor string) *models.ChallengeResult
}

// CodeRunner executes untrusted code against an entry function. It is the
// seam between challenges and the sandbox.
type CodeRunner interface {
	Execute(ctx context.Context, code, entry string, args ...[]byte) *models.ExecutionResult
}

// Registry holds the active challenge catalog keyed by ID.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Challenge
	order []string
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Challenge)}
}

func (r *Registry) Register(c Challenge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[c.ID()]; !exists {
		r.order = append(r.order, c.ID())
	}
	r.byID[c.ID()] = c
}

func (r *Registry) Get(id string) (Challenge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// List returns challenges in registration order.
func (r *Registry) List() []Challenge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Challenge, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
