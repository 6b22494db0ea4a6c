// Package registry implements the remote's device table: a sparse,
// grow-only array of device slots keyed by the integer device id the
// proxy uses on the wire, plus the "machine creation done" latch that
// fires the first time any device's irqfd is installed.
package registry

import (
	"sync"

	"github.com/nqminds/remote-dev-plane/internal/pcidev"
)

// MaxDevices bounds the device id space (wire ids are validated against
// this, not against the registry's current length: id >= MaxDevices is
// always rejected, id >= len(slots) just means "not yet added").
const MaxDevices = 256

// Slot holds one registered device and its wire-visible bookkeeping.
type Slot struct {
	Name    string
	Device  pcidev.Device
	Created bool // true once SET_IRQFD has been handled for this device
}

// Registry is the remote's device table. Every method takes the
// registry's own mutex; the *Slot values returned by Get and Lookup are
// not guarded by it once returned.
type Registry struct {
	mu       sync.Mutex
	slots    []*Slot
	byName   map[string]uint32
	once     sync.Once
	created  chan struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byName:  make(map[string]uint32),
		created: make(chan struct{}),
	}
}

// ErrOutOfRange is returned when a device id exceeds MaxDevices.
type ErrOutOfRange struct{ ID uint32 }

func (e ErrOutOfRange) Error() string { return "registry: device id out of range" }

// ErrNotFound is returned when a device id or name has no slot.
type ErrNotFound struct{}

func (ErrNotFound) Error() string { return "registry: device not found" }

// Add assigns dev to id, growing the slot array as needed. id must be
// strictly less than MaxDevices: the bound check is id >= MaxDevices,
// not id > MaxDevices.
func (r *Registry) Add(id uint32, name string, dev pcidev.Device) error {
	if id >= MaxDevices {
		return ErrOutOfRange{ID: id}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for uint32(len(r.slots)) <= id {
		r.slots = append(r.slots, nil)
	}
	r.slots[id] = &Slot{Name: name, Device: dev}
	r.byName[name] = id
	return nil
}

// Get returns the slot for id.
func (r *Registry) Get(id uint32) (*Slot, error) {
	if id >= MaxDevices {
		return nil, ErrOutOfRange{ID: id}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id >= uint32(len(r.slots)) || r.slots[id] == nil {
		return nil, ErrNotFound{}
	}
	return r.slots[id], nil
}

// Lookup resolves a device by its JSON-facing name, as DEVICE_DEL's
// payload does. The wire id remains authoritative for transport-level
// lookups; the name index exists only to support this call.
func (r *Registry) Lookup(name string) (uint32, *Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return 0, nil, ErrNotFound{}
	}
	return id, r.slots[id], nil
}

// Remove clears the slot at id and drops its name from the name index.
// It does not call the device's Unplug method.
func (r *Registry) Remove(id uint32) error {
	if id >= MaxDevices {
		return ErrOutOfRange{ID: id}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id >= uint32(len(r.slots)) || r.slots[id] == nil {
		return ErrNotFound{}
	}
	name := r.slots[id].Name
	delete(r.byName, name)
	r.slots[id] = nil
	return nil
}

// MarkCreated flips the slot's Created flag and, the first time this
// happens for any device in the registry, closes the machine-created
// latch.
func (r *Registry) MarkCreated(id uint32) error {
	slot, err := r.Get(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	slot.Created = true
	r.mu.Unlock()
	r.once.Do(func() { close(r.created) })
	return nil
}

// MachineCreated returns a channel that closes the first time any
// device's irqfd has been installed.
func (r *Registry) MachineCreated() <-chan struct{} {
	return r.created
}
