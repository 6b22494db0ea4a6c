package pcidev

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLSIFactory_CreateReportsVendorInConfigSpace(t *testing.T) {
	f := NewLSI53C895AFactory()
	dev, err := f.Create(nil)
	require.NoError(t, err)

	vendor, err := dev.ConfigRead(0x00, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1000), vendor)

	device, err := dev.ConfigRead(0x02, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(0x0012), device)
}

func TestLSIDevice_BARReadWriteRoundTrip(t *testing.T) {
	f := NewLSI53C895AFactory()
	dev, err := f.Create(nil)
	require.NoError(t, err)

	require.NoError(t, dev.BARWrite(1, true, 0x40, 0xabcd, 4))
	val, err := dev.BARRead(1, true, 0x40, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(0xabcd), val)
}

func TestLSIDevice_UnsupportedBAR(t *testing.T) {
	f := NewLSI53C895AFactory()
	dev, err := f.Create(nil)
	require.NoError(t, err)

	_, err = dev.BARRead(2, true, 0, 4)
	require.ErrorAs(t, err, &ErrUnsupportedBAR{})
}

func TestLSIDevice_ResetClearsBARState(t *testing.T) {
	f := NewLSI53C895AFactory()
	dev, err := f.Create(nil)
	require.NoError(t, err)

	require.NoError(t, dev.BARWrite(0, false, 0x04, 0x99, 1))
	require.NoError(t, dev.Reset())

	val, err := dev.BARRead(0, false, 0x04, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), val)
}

func TestLSIDevice_SetIRQFDRecordsDescriptors(t *testing.T) {
	f := NewLSI53C895AFactory()
	dev, err := f.Create(nil)
	require.NoError(t, err)

	require.NoError(t, dev.SetIRQFD(3, 10, 11))
	lsi := dev.(*lsiDevice)
	require.Equal(t, 10, lsi.irqFD)
	require.Equal(t, 11, lsi.resample)
}
