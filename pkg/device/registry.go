package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when no device exists under the given ID.
	ErrNotFound = errors.New("device not found")
	// ErrNameTaken is returned when a device with the same name exists.
	ErrNameTaken = errors.New("device name already in use")
)

// Registry is the in-memory device inventory, keyed by device ID with a
// unique-name constraint.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Device
	byName map[string]string // name -> ID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Device),
		byName: make(map[string]string),
	}
}

// Create registers a new device under a unique name.
func (r *Registry) Create(name string, labels map[string]string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	d := New(name, labels)
	r.byID[d.ID] = d
	r.byName[name] = d.ID
	return d, nil
}

// Get returns the device with the given ID.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// GetByName returns the device registered under the given name.
func (r *Registry) GetByName(name string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.byID[id], nil
}

// List returns all devices ordered by name.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*Device, 0, len(r.byID))
	for _, d := range r.byID {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// Delete removes the device with the given ID.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.byID, id)
	delete(r.byName, d.Name)
	return nil
}

// Len reports the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
