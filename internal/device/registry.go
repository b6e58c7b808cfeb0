package device

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks the devices known to the engine.
//
// Registration happens at startup; availability flips at runtime as
// devices go offline and return. All methods are thread-safe.
type Registry struct {
	devices map[string]*Device
	mu      sync.RWMutex
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
	}
}

// Register adds a device backed by the given driver. The device starts
// available. Returns ErrDuplicateDevice if the ID is taken.
func (r *Registry) Register(id, name string, driver Driver) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownDevice)
	}
	if driver == nil {
		return fmt.Errorf("device: nil driver for %q", id)
	}

	caps := make(map[string]bool)
	for _, c := range driver.Capabilities() {
		caps[c] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateDevice, id)
	}
	r.devices[id] = &Device{
		ID:           id,
		Name:         name,
		Driver:       driver,
		Capabilities: caps,
		Available:    true,
	}
	return nil
}

// Get retrieves a device by ID. Returns ErrUnknownDevice if absent.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return d, nil
}

// List returns a snapshot of all devices sorted by ID.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		caps := make(map[string]bool, len(d.Capabilities))
		for k, v := range d.Capabilities {
			caps[k] = v
		}
		out = append(out, Device{
			ID:           d.ID,
			Name:         d.Name,
			Driver:       d.Driver,
			Capabilities: caps,
			Available:    d.Available,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Available reports a device's current availability flag.
// Returns ErrUnknownDevice if the ID is not registered.
func (r *Registry) Available(id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return d.Available, nil
}

// SetAvailable flips a device's availability flag.
// Returns ErrUnknownDevice if the ID is not registered.
func (r *Registry) SetAvailable(id string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	d.Available = available
	return nil
}
