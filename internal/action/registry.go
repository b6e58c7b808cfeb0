package action

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the process-wide catalog of action kinds.
//
// Kinds are registered during startup and the catalog is read-only
// thereafter: Register never replaces an existing entry, and lookups
// return deep copies so concurrent readers always see an immutable
// snapshot.
//
// All public methods are thread-safe.
type Registry struct {
	kinds map[string]*Kind
	mu    sync.RWMutex
}

// NewRegistry creates an empty action kind registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]*Kind),
	}
}

// Register adds a kind to the catalog.
// Returns ErrDuplicateKind if the name already exists, or ErrInvalidKind
// if the definition is malformed.
func (r *Registry) Register(kind Kind) error {
	if err := ValidateKind(&kind); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[kind.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKind, kind.Name)
	}

	r.kinds[kind.Name] = kind.DeepCopy()
	return nil
}

// Lookup retrieves a kind by name.
// Returns ErrUnknownKind if the name is not registered.
// The returned kind is a deep copy; callers can safely hold it.
func (r *Registry) Lookup(name string) (*Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return kind.DeepCopy(), nil
}

// List returns all registered kinds sorted by name.
func (r *Registry) List() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		kinds = append(kinds, *k.DeepCopy())
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i].Name < kinds[j].Name
	})
	return kinds
}

// Count returns the number of registered kinds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}
