// Package session owns the lifecycle of chat-platform sessions: the
// in-memory registry of live driver handles and the controller that
// drives state transitions and persistence.
package session

import (
	"sync"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/driver"
)

// Registry maps session names to live driver handles. The registry is
// volatile: it is rebuilt only through explicit initialize calls, and
// the persistent store remains the durable source of truth for status.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]driver.Handle
	locks   sync.Map // per-name *sync.Mutex
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]driver.Handle),
	}
}

// Register stores the handle for name. At most one live handle may
// exist per name; a second registration fails with ErrAlreadyRegistered.
func (r *Registry) Register(name string, h driver.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[name]; exists {
		return domain.ErrAlreadyRegistered
	}
	r.handles[name] = h
	return nil
}

// Lookup returns the handle for name. Never blocks.
func (r *Registry) Lookup(name string) (driver.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	return h, ok
}

// Unregister removes the handle for name. Idempotent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, name)
}

// Names returns a snapshot of all currently registered session names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	return names
}

// MutexFor returns the mutex serializing lifecycle operations for one
// name. Different names proceed independently.
func (r *Registry) MutexFor(name string) *sync.Mutex {
	lock, _ := r.locks.LoadOrStore(name, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
