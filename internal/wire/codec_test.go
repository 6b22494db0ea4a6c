package wire

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSendRecv_InlineUnion(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	union := BARAccess{Memory: true, Bar: 1, Addr: 0x40, Val: 0xdeadbeef, Size: 4}.Encode()
	sent := NewFrame(CmdBARWrite, 7, union)

	require.NoError(t, Send(a, sent))

	got, err := Recv(b)
	require.NoError(t, err)
	defer got.Release()

	require.Equal(t, CmdBARWrite, got.Command())
	require.Equal(t, uint64(7), got.Header.ID)
	require.Equal(t, uint32(0), got.Header.Bytestream)

	decoded := DecodeBARAccess(got.Union[:])
	require.Equal(t, uint64(0x40), decoded.Addr)
	require.Equal(t, uint64(0xdeadbeef), decoded.Val)
	require.Equal(t, uint32(4), decoded.Size)
}

func TestSendRecv_Bytestream(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	waitR, waitW, err := os.Pipe()
	require.NoError(t, err)
	defer waitR.Close()
	defer waitW.Close()

	payload := []byte(`{"driver":"e1000","id":"net0"}`)
	sent := NewBytestreamFrame(CmdDeviceAdd, 3, payload, int(waitR.Fd()))

	require.NoError(t, Send(a, sent))

	got, err := Recv(b)
	require.NoError(t, err)
	defer got.Release()

	require.Equal(t, uint32(1), got.Header.Bytestream)
	require.Equal(t, payload, got.Data)
}

func TestSendRecv_PCIConfigAccessIsBytestream(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	payload := PCIConfigAccess{Addr: 0x10, Val: 0xdeadbeef, Len: 4}.Encode()
	sent := NewBytestreamFrame(CmdPCIConfigWrite, 7, payload)

	require.NoError(t, Send(a, sent))

	got, err := Recv(b)
	require.NoError(t, err)
	defer got.Release()

	require.Equal(t, CmdPCIConfigWrite, got.Command())
	require.Equal(t, uint32(1), got.Header.Bytestream)

	decoded := DecodePCIConfigAccess(got.Data)
	require.Equal(t, uint32(0x10), decoded.Addr)
	require.Equal(t, uint32(0xdeadbeef), decoded.Val)
	require.Equal(t, uint8(4), decoded.Len)
}

func TestSendRecv_ConservesFDs(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	pipeR, pipeW, err := os.Pipe()
	require.NoError(t, err)
	defer pipeR.Close()
	defer pipeW.Close()

	union := IRQFDInfo{Vector: 2}.Encode()
	sent := NewFrame(CmdSetIRQFD, 1, union, int(pipeW.Fd()), int(pipeR.Fd()))

	require.NoError(t, Send(a, sent))

	got, err := Recv(b)
	require.NoError(t, err)
	defer got.Release()

	require.Len(t, got.FDs, 2)

	irqFD := got.TakeFD(0)
	defer unix.Close(irqFD)
	resampleFD := got.TakeFD(1)
	defer unix.Close(resampleFD)

	require.GreaterOrEqual(t, irqFD, 0)
	require.GreaterOrEqual(t, resampleFD, 0)

	msg := []byte("ping")
	_, err = unix.Write(irqFD, msg)
	require.NoError(t, err)

	// taken FDs are no longer owned by the frame; Release must not
	// double-close them.
	got.Release()
}

func TestRecv_RejectsTooManyFDs(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	fds := make([]int, MaxFDs+1)
	for i := range fds {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		defer r.Close()
		defer w.Close()
		fds[i] = int(r.Fd())
	}

	union := RunstateInfo{State: 1}.Encode()
	sent := NewFrame(CmdRunstateSet, 1, union, fds...)

	// Send itself doesn't validate FD count; Recv must reject it.
	require.NoError(t, Send(a, sent))

	_, err := Recv(b)
	require.ErrorIs(t, err, ErrTooManyFDs)
}

func TestRecv_RejectsShapeMismatch(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	// DEVICE_RESET's shape allows 0 or 1 FDs; send 2 to violate it.
	pipeR1, pipeW1, err := os.Pipe()
	require.NoError(t, err)
	defer pipeR1.Close()
	defer pipeW1.Close()
	pipeR2, pipeW2, err := os.Pipe()
	require.NoError(t, err)
	defer pipeR2.Close()
	defer pipeW2.Close()

	sent := NewFrame(CmdDeviceReset, 1, nil, int(pipeR1.Fd()), int(pipeR2.Fd()))
	require.NoError(t, Send(a, sent))

	_, err = Recv(b)
	require.Error(t, err)
}
