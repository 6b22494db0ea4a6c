package dispatch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nqminds/remote-dev-plane/internal/handlers"
	"github.com/nqminds/remote-dev-plane/internal/link"
	"github.com/nqminds/remote-dev-plane/internal/registry"
	"github.com/nqminds/remote-dev-plane/internal/sysmem"
	"github.com/nqminds/remote-dev-plane/internal/waitfd"
	"github.com/nqminds/remote-dev-plane/internal/wire"
)

func (d *Dispatcher) route(ctx context.Context, f *wire.Frame, side link.Side, reply link.Replier) error {
	if f.Header.ID >= registry.MaxDevices {
		return &fatalError{msg: "dispatch: device id out of range"}
	}
	switch f.Command() {
	case wire.CmdInit:
		return nil

	case wire.CmdGetPCIInfo:
		return d.handleGetPCIInfo(f, reply)

	case wire.CmdPCIConfigWrite:
		return d.handlePCIConfigWrite(f)

	case wire.CmdPCIConfigRead:
		return d.handlePCIConfigRead(f)

	case wire.CmdBARWrite:
		return d.handleBARWrite(f)

	case wire.CmdBARRead:
		return d.handleBARRead(f, reply)

	case wire.CmdSyncSysmem:
		return d.handleSyncSysmem(f)

	case wire.CmdSetIRQFD:
		return d.handleSetIRQFD(f)

	case wire.CmdDevOpts:
		return d.handleDevOpts(f)

	case wire.CmdDeviceAdd:
		return d.handleDeviceAdd(f)

	case wire.CmdDeviceDel:
		return d.handleDeviceDel(f)

	case wire.CmdDeviceReset:
		return d.handleDeviceReset(f)

	case wire.CmdRemotePing:
		return d.handleRemotePing(f)

	case wire.CmdStartMigOut:
		return d.handleStartMigOut(f)

	case wire.CmdStartMigIn:
		return d.handleStartMigIn(f)

	case wire.CmdRunstateSet:
		return d.handleRunstateSet(f)

	default:
		return &fatalError{msg: "dispatch: unhandled command"}
	}
}

// fatalError is a minimal local error used for conditions dispatch
// itself detects (unknown command, registry lookup failure) that don't
// originate from a device handler.
type fatalError struct{ msg string }

func (e *fatalError) Error() string { return e.msg }
func (e *fatalError) Fatal() bool   { return true }

type deviceErrorT struct{ msg string }

func (e *deviceErrorT) Error() string { return e.msg }
func (e *deviceErrorT) Fatal() bool   { return false }

func deviceError(msg string) error { return &deviceErrorT{msg: msg} }

func isFatal(err error) bool {
	var fe interface{ Fatal() bool }
	if errors.As(err, &fe) {
		return fe.Fatal()
	}
	return true
}

func (d *Dispatcher) deviceFor(id uint32) (*registry.Slot, error) {
	slot, err := d.reg.Get(id)
	if err != nil {
		return nil, &fatalError{msg: "dispatch: " + err.Error()}
	}
	return slot, nil
}

func (d *Dispatcher) handleGetPCIInfo(f *wire.Frame, reply link.Replier) error {
	slot, err := d.deviceFor(uint32(f.Header.ID))
	if err != nil {
		return err
	}
	info := slot.Device.Info()
	union := wire.PCIInfo{
		Vendor:          info.Vendor,
		Device:          info.Device,
		Class:           info.Class,
		SubsystemVendor: info.SubsystemVendor,
		SubsystemDevice: info.SubsystemDevice,
	}.Encode()
	return reply.SendControl(wire.NewFrame(wire.CmdRetPCIInfo, f.Header.ID, union))
}

func (d *Dispatcher) handlePCIConfigWrite(f *wire.Frame) error {
	slot, err := d.deviceFor(uint32(f.Header.ID))
	if err != nil {
		return err
	}
	acc := wire.DecodePCIConfigAccess(f.Data)

	d.stateMu.Lock()
	cfgErr := slot.Device.ConfigWrite(acc.Addr, acc.Val, acc.Len)
	d.stateMu.Unlock()

	if cfgErr != nil {
		return deviceError(cfgErr.Error())
	}
	return nil
}

func (d *Dispatcher) handlePCIConfigRead(f *wire.Frame) error {
	waitFD := f.TakeFD(0)
	slot, err := d.deviceFor(uint32(f.Header.ID))
	if err != nil {
		return notify(waitFD, waitfd.Failed, err)
	}
	acc := wire.DecodePCIConfigAccess(f.Data)

	d.stateMu.Lock()
	val, cfgErr := slot.Device.ConfigRead(acc.Addr, acc.Len)
	d.stateMu.Unlock()

	if cfgErr != nil {
		return notify(waitFD, waitfd.Failed, deviceError(cfgErr.Error()))
	}
	return notify(waitFD, uint64(val), nil)
}

func (d *Dispatcher) handleBARWrite(f *wire.Frame) error {
	slot, err := d.deviceFor(uint32(f.Header.ID))
	if err != nil {
		return err
	}
	acc := wire.DecodeBARAccess(f.Union[:])

	d.stateMu.Lock()
	barErr := slot.Device.BARWrite(int(acc.Bar), acc.Memory, acc.Addr, acc.Val, acc.Size)
	d.stateMu.Unlock()

	if barErr != nil {
		return deviceError(barErr.Error())
	}
	return nil
}

func (d *Dispatcher) handleBARRead(f *wire.Frame, reply link.Replier) error {
	slot, err := d.deviceFor(uint32(f.Header.ID))
	if err != nil {
		return err
	}
	acc := wire.DecodeBARAccess(f.Union[:])

	d.stateMu.Lock()
	val, barErr := slot.Device.BARRead(int(acc.Bar), acc.Memory, acc.Addr, acc.Size)
	d.stateMu.Unlock()

	// BAR_READ always replies via MMIO_RETURN, even on error: the
	// value is all-ones, matching a MEMTX error's conventional
	// "return -1" sentinel on real hardware.
	if barErr != nil {
		val = ^uint64(0)
	}
	union := wire.MMIOReturn{Val: val}.Encode()
	sendErr := reply.SendMMIO(wire.NewFrame(wire.CmdMMIOReturn, f.Header.ID, union))
	if sendErr != nil {
		return sendErr
	}
	if barErr != nil {
		return deviceError(barErr.Error())
	}
	return nil
}

func (d *Dispatcher) handleSyncSysmem(f *wire.Frame) error {
	type region struct {
		Offset uint64 `json:"offset"`
		Size   uint64 `json:"size"`
	}
	var payload struct {
		Regions []region `json:"regions"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return &fatalError{msg: "dispatch: malformed SYNC_SYSMEM payload"}
	}
	if len(payload.Regions) != len(f.FDs) {
		return &fatalError{msg: "dispatch: SYNC_SYSMEM region/fd count mismatch"}
	}
	descs := make([]sysmem.Descriptor, len(payload.Regions))
	for i, r := range payload.Regions {
		descs[i] = sysmem.Descriptor{FD: f.TakeFD(i), Offset: r.Offset, Size: r.Size}
	}
	d.sysmem.Sync(descs)
	return nil
}

func (d *Dispatcher) handleSetIRQFD(f *wire.Frame) error {
	slot, err := d.deviceFor(uint32(f.Header.ID))
	if err != nil {
		return err
	}
	info := wire.DecodeIRQFDInfo(f.Union[:])
	irqFD := f.TakeFD(0)
	resampleFD := f.TakeFD(1)

	if setErr := slot.Device.SetIRQFD(int(info.Vector), irqFD, resampleFD); setErr != nil {
		return deviceError(setErr.Error())
	}
	return d.reg.MarkCreated(uint32(f.Header.ID))
}

func (d *Dispatcher) handleDevOpts(f *wire.Frame) error {
	waitFD := f.TakeFD(0)
	driver, opts, err := handlers.ParseDeviceOptions(f.Data)
	if err != nil {
		return notify(waitFD, waitfd.Failed, &fatalError{msg: "dispatch: malformed DEV_OPTS payload"})
	}
	factory, ok := d.factories.Lookup(driver)
	if !ok {
		return notify(waitFD, waitfd.Failed, deviceError("unknown driver: "+driver))
	}
	name, _ := handlers.DeviceName(opts)

	dev, createErr := factory.Create(opts)
	if createErr != nil {
		return notify(waitFD, waitfd.Failed, deviceError(createErr.Error()))
	}
	if addErr := d.reg.Add(uint32(f.Header.ID), name, dev); addErr != nil {
		return notify(waitFD, waitfd.Failed, &fatalError{msg: addErr.Error()})
	}
	return notify(waitFD, 1, nil)
}

func (d *Dispatcher) handleDeviceAdd(f *wire.Frame) error {
	waitFD := f.TakeFD(0)
	driver, opts, err := handlers.ParseDeviceOptions(f.Data)
	if err != nil {
		return notify(waitFD, waitfd.Failed, &fatalError{msg: "dispatch: malformed DEVICE_ADD payload"})
	}
	factory, ok := d.factories.Lookup(driver)
	if !ok {
		return notify(waitFD, waitfd.Failed, deviceError("unknown driver: "+driver))
	}
	name, _ := handlers.DeviceName(opts)

	dev, createErr := factory.Create(opts)
	if createErr != nil {
		return notify(waitFD, waitfd.Failed, deviceError(createErr.Error()))
	}
	if addErr := d.reg.Add(uint32(f.Header.ID), name, dev); addErr != nil {
		return notify(waitFD, waitfd.Failed, &fatalError{msg: addErr.Error()})
	}
	return notify(waitFD, 1, nil)
}

func (d *Dispatcher) handleDeviceDel(f *wire.Frame) error {
	waitFD := f.TakeFD(0)
	id, err := handlers.ParseDeviceID(f.Data)
	if err != nil {
		return notify(waitFD, waitfd.Failed, &fatalError{msg: "dispatch: malformed DEVICE_DEL payload"})
	}
	wireID, slot, lookupErr := d.reg.Lookup(id.ID)
	if lookupErr != nil {
		return notify(waitFD, waitfd.Failed, deviceError("unknown device: "+id.ID))
	}
	if unplugErr := slot.Device.Unplug(); unplugErr != nil {
		return notify(waitFD, waitfd.Failed, deviceError(unplugErr.Error()))
	}
	if remErr := d.reg.Remove(wireID); remErr != nil {
		return notify(waitFD, waitfd.Failed, &fatalError{msg: remErr.Error()})
	}
	return notify(waitFD, 1, nil)
}

func (d *Dispatcher) handleDeviceReset(f *wire.Frame) error {
	slot, err := d.deviceFor(uint32(f.Header.ID))
	var waitFD int = -1
	if len(f.FDs) == 1 {
		waitFD = f.TakeFD(0)
	}
	if err != nil {
		return notify(waitFD, waitfd.Failed, err)
	}

	d.stateMu.Lock()
	resetErr := slot.Device.Reset()
	d.stateMu.Unlock()

	if resetErr != nil {
		return notify(waitFD, waitfd.Failed, deviceError(resetErr.Error()))
	}
	return notify(waitFD, 0, nil)
}

func (d *Dispatcher) handleRemotePing(f *wire.Frame) error {
	waitFD := f.TakeFD(0)
	return notify(waitFD, uint64(pid()), nil)
}

func (d *Dispatcher) handleStartMigOut(f *wire.Frame) error {
	ioFD := f.TakeFD(0)
	waitFD := f.TakeFD(1)
	if d.migrator == nil {
		return notify(waitFD, waitfd.Failed, deviceError("migration not supported"))
	}
	n, err := d.migrator.SaveVM(ioFD)
	if err != nil {
		return notify(waitFD, waitfd.Failed, deviceError(err.Error()))
	}
	return notify(waitFD, uint64(n), nil)
}

func (d *Dispatcher) handleStartMigIn(f *wire.Frame) error {
	ioFD := f.TakeFD(0)
	if d.migrator == nil {
		return deviceError("migration not supported")
	}
	if err := d.migrator.LoadVM(ioFD); err != nil {
		return deviceError(err.Error())
	}
	return nil
}

func (d *Dispatcher) handleRunstateSet(f *wire.Frame) error {
	waitFD := f.TakeFD(0)
	_ = wire.DecodeRunstateInfo(f.Union[:])
	return notify(waitFD, 0, nil)
}

// notify posts val (or the failure sentinel, if err != nil) on waitFD and
// returns err so the caller's return value still reflects the original
// failure for fatal/non-fatal classification.
func notify(waitFD int, val uint64, err error) error {
	if waitFD >= 0 {
		_ = waitfd.Notify(waitFD, val)
	}
	return err
}
