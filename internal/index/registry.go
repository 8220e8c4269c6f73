package index

import (
	"sync"

	"roadlog/pkg/domain"
)

// Registry addresses per-user index handles deterministically: the same
// (kind, user) pair always resolves to the same Handle, so all operations
// for that scope funnel through one mutex regardless of which request
// handler asks.
type Registry struct {
	storage Storage

	mu      sync.Mutex
	handles map[string]*Handle
}

func NewRegistry(storage Storage) *Registry {
	return &Registry{
		storage: storage,
		handles: make(map[string]*Handle),
	}
}

// For resolves the handle owning the given scope, creating it lazily.
func (r *Registry) For(kind domain.Kind, userID domain.UserID) *Handle {
	scope := Scope(kind, userID)

	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[scope]
	if !ok {
		h = newHandle(scope, r.storage)
		r.handles[scope] = h
	}
	return h
}

// Scope renders the storage namespace for a (kind, user) pair.
func Scope(kind domain.Kind, userID domain.UserID) string {
	return string(kind) + ":" + string(userID)
}
