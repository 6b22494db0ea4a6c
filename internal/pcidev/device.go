// Package pcidev defines the capability-set a remotely emulated PCI
// device exposes to the dispatcher: config space, BAR access, IRQ
// installation, reset, and unplug.
package pcidev

import "fmt"

// Info describes a device's identity as reported by GET_PCI_INFO.
type Info struct {
	Vendor          uint16
	Device          uint16
	Class           uint16
	SubsystemVendor uint16
	SubsystemDevice uint16
}

// Device is the minimal capability set every emulated PCI device
// implements: config space, BAR access, IRQ installation, reset and
// unplug. Real device models add nothing to this interface; they just
// implement it more elaborately than the stubs in this package do.
type Device interface {
	Info() Info
	ConfigRead(addr uint32, length uint8) (uint32, error)
	ConfigWrite(addr uint32, val uint32, length uint8) error
	BARRead(bar int, memory bool, addr uint64, size uint32) (uint64, error)
	BARWrite(bar int, memory bool, addr uint64, val uint64, size uint32) error
	SetIRQFD(vector int, irqFD, resampleFD int) error
	Reset() error
	Unplug() error
}

// Factory creates a configured Device from a DEVICE_ADD options map (with
// the transport's reserved keys already stripped) and reports the
// PCI identity a not-yet-instantiated device of this type would have.
type Factory interface {
	Create(opts map[string]any) (Device, error)
	TypeInfo() Info
}

// ErrUnsupportedBAR is returned by devices for bar indices they don't
// implement.
type ErrUnsupportedBAR struct{ BAR int }

func (e ErrUnsupportedBAR) Error() string {
	return fmt.Sprintf("pcidev: unsupported BAR %d", e.BAR)
}

// FactoryRegistry maps a driver name (as given in device options, e.g.
// {"driver": "lsi53c895a"}) to the Factory that builds it.
type FactoryRegistry struct {
	factories map[string]Factory
}

// NewFactoryRegistry returns an empty factory registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Register adds a factory under driver.
func (r *FactoryRegistry) Register(driver string, f Factory) {
	r.factories[driver] = f
}

// Lookup returns the factory registered for driver.
func (r *FactoryRegistry) Lookup(driver string) (Factory, bool) {
	f, ok := r.factories[driver]
	return f, ok
}
