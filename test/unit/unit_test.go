package unit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nqminds/remote-dev-plane/internal/wire"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := wire.Header{
		Cmd:        uint32(wire.CmdBARWrite),
		Bytestream: 0,
		Size:       0,
		ID:         99,
		SizeID:     7,
		NumFDs:     2,
	}
	encoded := wire.EncodeHeader(&h)
	require.Len(t, encoded, wire.HeaderSize)

	got, err := wire.DecodeHeader(encoded)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestCommandString(t *testing.T) {
	require.Equal(t, "BAR_READ", wire.CmdBARRead.String())
	require.Equal(t, "DEVICE_ADD", wire.CmdDeviceAdd.String())
}

func TestCommandValid(t *testing.T) {
	require.True(t, wire.CmdInit.Valid())
	require.True(t, wire.CmdRunstateSet.Valid())
	require.False(t, wire.Command(999).Valid())
}

func TestShapeValidation_RejectsMissingRequiredFD(t *testing.T) {
	// PCI_CONFIG_READ requires exactly one wait-fd.
	f := &wire.Frame{}
	f.Header.Cmd = uint32(wire.CmdPCIConfigRead)
	f.Header.Bytestream = 1
	err := wire.Validate(f)
	require.Error(t, err)
}

func TestShapeValidation_AcceptsValidShape(t *testing.T) {
	f := &wire.Frame{FDs: []int{3}}
	f.Header.Cmd = uint32(wire.CmdPCIConfigRead)
	f.Header.Bytestream = 1
	require.NoError(t, wire.Validate(f))
}
