package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/nqminds/remote-dev-plane/internal/dispatch"
	"github.com/nqminds/remote-dev-plane/internal/link"
	"github.com/nqminds/remote-dev-plane/internal/pcidev"
	"github.com/nqminds/remote-dev-plane/internal/registry"
	"github.com/nqminds/remote-dev-plane/internal/sysmem"
	"github.com/nqminds/remote-dev-plane/internal/testutil"
	"github.com/nqminds/remote-dev-plane/internal/waitfd"
	"github.com/nqminds/remote-dev-plane/internal/wire"
)

type capturingReplier struct {
	control []*wire.Frame
	mmio    []*wire.Frame
}

func (c *capturingReplier) SendControl(f *wire.Frame) error {
	c.control = append(c.control, f)
	return nil
}

func (c *capturingReplier) SendMMIO(f *wire.Frame) error {
	c.mmio = append(c.mmio, f)
	return nil
}

func newDispatcher(t *testing.T) (*dispatch.Dispatcher, *registry.Registry, *pcidev.FactoryRegistry) {
	t.Helper()
	reg := registry.New()
	factories := pcidev.NewFactoryRegistry()
	d := dispatch.New(dispatch.Config{
		Registry:  reg,
		Factories: factories,
		Sysmem:    sysmem.NewTable(),
		WaitPool:  waitfd.NewPool(),
	})
	return d, reg, factories
}

func TestDispatcher_GetPCIInfo(t *testing.T) {
	d, reg, _ := newDispatcher(t)
	dev := testutil.NewFakeDevice(pcidev.Info{Vendor: 0x1111, Device: 0x2222})
	require.NoError(t, reg.Add(0, "dev0", dev))

	f := wire.NewFrame(wire.CmdGetPCIInfo, 0, nil)
	reply := &capturingReplier{}

	err := d.Handle(context.Background(), f, link.Control, reply)
	require.NoError(t, err)
	require.Len(t, reply.control, 1)

	info := wire.DecodePCIInfo(reply.control[0].Union[:])
	require.Equal(t, uint16(0x1111), info.Vendor)
	require.Equal(t, uint16(0x2222), info.Device)
}

func TestDispatcher_BARWriteThenReadRoundTrip(t *testing.T) {
	d, reg, _ := newDispatcher(t)
	dev := testutil.NewFakeDevice(pcidev.Info{})
	require.NoError(t, reg.Add(1, "dev1", dev))

	writeUnion := wire.BARAccess{Memory: true, Bar: 0, Addr: 0x10, Val: 0x42, Size: 4}.Encode()
	writeFrame := wire.NewFrame(wire.CmdBARWrite, 1, writeUnion)
	require.NoError(t, d.Handle(context.Background(), writeFrame, link.MMIO, &capturingReplier{}))

	readUnion := wire.BARAccess{Memory: true, Bar: 0, Addr: 0x10, Size: 4}.Encode()
	readFrame := wire.NewFrame(wire.CmdBARRead, 1, readUnion)
	reply := &capturingReplier{}
	require.NoError(t, d.Handle(context.Background(), readFrame, link.MMIO, reply))

	require.Len(t, reply.mmio, 1)
	mmioReturn := wire.DecodeMMIOReturn(reply.mmio[0].Union[:])
	require.Equal(t, uint64(0x42), mmioReturn.Val)
}

func TestDispatcher_BARReadUnknownDeviceIsFatalAndUnreplied(t *testing.T) {
	d, _, _ := newDispatcher(t)

	readUnion := wire.BARAccess{Bar: 0, Addr: 0, Size: 4}.Encode()
	f := wire.NewFrame(wire.CmdBARRead, 99, readUnion)
	reply := &capturingReplier{}

	// An unknown device id fails before BAR_READ ever reaches the
	// point of sending an MMIO_RETURN.
	err := d.Handle(context.Background(), f, link.MMIO, reply)
	require.Error(t, err)
	require.Empty(t, reply.mmio)
}

func TestDispatcher_DevOptsCreatesAndInstallsDevice(t *testing.T) {
	d, reg, factories := newDispatcher(t)
	factories.Register("lsi53c895a", pcidev.NewLSI53C895AFactory())

	pool := waitfd.NewPool()
	waitFD, err := pool.Get()
	require.NoError(t, err)
	defer unix.Close(waitFD)

	payload := []byte(`{"driver":"lsi53c895a","id":"scsi0"}`)
	optsFrame := wire.NewBytestreamFrame(wire.CmdDevOpts, 3, payload, waitFD)

	require.NoError(t, d.Handle(context.Background(), optsFrame, link.Control, &capturingReplier{}))

	v, err := waitfd.Wait(waitFD)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	slot, err := reg.Get(3)
	require.NoError(t, err)
	require.Equal(t, "scsi0", slot.Name)
}

func TestDispatcher_DeviceAddThenGetPCIInfo(t *testing.T) {
	d, reg, factories := newDispatcher(t)
	factories.Register("e1000", pcidev.NewE1000Factory())

	pool := waitfd.NewPool()
	waitFD, err := pool.Get()
	require.NoError(t, err)
	defer unix.Close(waitFD)

	payload := []byte(`{"driver":"e1000","id":"net0"}`)
	addFrame := wire.NewBytestreamFrame(wire.CmdDeviceAdd, 2, payload, waitFD)

	require.NoError(t, d.Handle(context.Background(), addFrame, link.Control, &capturingReplier{}))

	v, err := waitfd.Wait(waitFD)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	slot, err := reg.Get(2)
	require.NoError(t, err)
	require.Equal(t, "net0", slot.Name)
}
