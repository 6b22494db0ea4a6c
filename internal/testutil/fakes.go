// Package testutil provides fakes used by this repo's own tests:
// call-counting implementations plus compile-time interface assertions
// rather than a generated mock.
package testutil

import (
	"sync"

	"github.com/nqminds/remote-dev-plane/internal/dispatch"
	"github.com/nqminds/remote-dev-plane/internal/pcidev"
)

// FakeDevice is a minimal, call-counting pcidev.Device.
type FakeDevice struct {
	mu sync.Mutex

	info pcidev.Info
	cfg  map[uint32]uint32
	bars map[int]map[uint64]uint64

	IRQVector    int
	IRQFD        int
	ResampleFD   int
	ResetCount   int
	UnplugCount  int
	ConfigWrites int
	BARWrites    int
}

// NewFakeDevice returns a FakeDevice reporting info.
func NewFakeDevice(info pcidev.Info) *FakeDevice {
	return &FakeDevice{
		info: info,
		cfg:  make(map[uint32]uint32),
		bars: make(map[int]map[uint64]uint64),
	}
}

func (d *FakeDevice) Info() pcidev.Info { return d.info }

func (d *FakeDevice) ConfigRead(addr uint32, length uint8) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg[addr], nil
}

func (d *FakeDevice) ConfigWrite(addr uint32, val uint32, length uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg[addr] = val
	d.ConfigWrites++
	return nil
}

func (d *FakeDevice) BARRead(bar int, memory bool, addr uint64, size uint32) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bars[bar] == nil {
		return 0, nil
	}
	return d.bars[bar][addr], nil
}

func (d *FakeDevice) BARWrite(bar int, memory bool, addr uint64, val uint64, size uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bars[bar] == nil {
		d.bars[bar] = make(map[uint64]uint64)
	}
	d.bars[bar][addr] = val
	d.BARWrites++
	return nil
}

func (d *FakeDevice) SetIRQFD(vector int, irqFD, resampleFD int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.IRQVector, d.IRQFD, d.ResampleFD = vector, irqFD, resampleFD
	return nil
}

func (d *FakeDevice) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCount++
	return nil
}

func (d *FakeDevice) Unplug() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.UnplugCount++
	return nil
}

// FakeFactory always returns the same FakeDevice, recording how many
// times Create was called.
type FakeFactory struct {
	Info       pcidev.Info
	CreateErr  error
	CreateFunc func(opts map[string]any) (pcidev.Device, error)

	mu    sync.Mutex
	Calls int
}

func (f *FakeFactory) TypeInfo() pcidev.Info { return f.Info }

func (f *FakeFactory) Create(opts map[string]any) (pcidev.Device, error) {
	f.mu.Lock()
	f.Calls++
	f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if f.CreateFunc != nil {
		return f.CreateFunc(opts)
	}
	return NewFakeDevice(f.Info), nil
}

// FakeMigrator implements dispatch.Migrator for migration tests.
type FakeMigrator struct {
	SaveBytes int64
	SaveErr   error
	LoadErr   error
	LoadCalls int
}

func (m *FakeMigrator) SaveVM(fd int) (int64, error) { return m.SaveBytes, m.SaveErr }

func (m *FakeMigrator) LoadVM(fd int) error {
	m.LoadCalls++
	return m.LoadErr
}

var (
	_ pcidev.Device     = (*FakeDevice)(nil)
	_ pcidev.Factory    = (*FakeFactory)(nil)
	_ dispatch.Migrator = (*FakeMigrator)(nil)
)
