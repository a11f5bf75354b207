// Package device models the virtual devices policies evaluate against.
// Each device carries two attribute scopes: the committed current values
// and the in-process values staged by policy evaluation, promoted to
// current on commit.
package device

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldgrid/device-policy-engine/pkg/types"
)

// Device is a virtual device with named attribute values. All methods are
// safe for concurrent use. A Device satisfies formula.ValueProvider, so a
// formula can be computed directly against it.
type Device struct {
	ID        string
	Name      string
	Labels    map[string]string
	CreatedAt time.Time

	mu        sync.RWMutex
	current   map[string]types.Value
	inProcess map[string]types.Value
	updatedAt time.Time
}

// New creates a device with a fresh ID and empty attribute scopes.
func New(name string, labels map[string]string) *Device {
	now := time.Now().UTC()
	return &Device{
		ID:        uuid.NewString(),
		Name:      name,
		Labels:    labels,
		CreatedAt: now,
		current:   make(map[string]types.Value),
		inProcess: make(map[string]types.Value),
		updatedAt: now,
	}
}

// GetCurrentValue returns the committed value of the named attribute.
func (d *Device) GetCurrentValue(name string) (types.Value, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.current[name]
	return v, ok
}

// GetInProcessValue returns the staged value of the named attribute. It
// does not fall back to the current scope; the formula evaluator handles
// that itself.
func (d *Device) GetInProcessValue(name string) (types.Value, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.inProcess[name]
	return v, ok
}

// SetCurrent writes an attribute's committed value directly, bypassing
// the staging scope. This is the path for reported device state.
func (d *Device) SetCurrent(name string, v types.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current[name] = v
	d.updatedAt = time.Now().UTC()
}

// Stage records an in-process value for the named attribute. Staged
// values shadow current ones during evaluation until Commit or Discard.
func (d *Device) Stage(name string, v types.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inProcess[name] = v
	d.updatedAt = time.Now().UTC()
}

// Commit promotes every staged value to the current scope and clears the
// staging scope. It returns the names of the attributes that changed.
func (d *Device) Commit() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	changed := make([]string, 0, len(d.inProcess))
	for name, v := range d.inProcess {
		d.current[name] = v
		changed = append(changed, name)
	}
	d.inProcess = make(map[string]types.Value)
	if len(changed) > 0 {
		d.updatedAt = time.Now().UTC()
	}
	return changed
}

// Discard drops all staged values without touching the current scope.
func (d *Device) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inProcess = make(map[string]types.Value)
}

// Snapshot is a point-in-time copy of a device for serialization.
type Snapshot struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Current   map[string]types.Value `json:"current"`
	InProcess map[string]types.Value `json:"in_process,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Snapshot copies the device's state under the read lock.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := Snapshot{
		ID:        d.ID,
		Name:      d.Name,
		Labels:    d.Labels,
		Current:   make(map[string]types.Value, len(d.current)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.updatedAt,
	}
	for k, v := range d.current {
		snap.Current[k] = v
	}
	if len(d.inProcess) > 0 {
		snap.InProcess = make(map[string]types.Value, len(d.inProcess))
		for k, v := range d.inProcess {
			snap.InProcess[k] = v
		}
	}
	return snap
}
