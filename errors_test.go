package remotedev

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewError_FormatsOpAndMessage(t *testing.T) {
	err := NewError("GET_PCI_INFO", CodeProtocol, "unknown command")
	require.Equal(t, "remotedev: unknown command (op=GET_PCI_INFO)", err.Error())
	require.True(t, err.Fatal())
}

func TestNewDeviceError_IsNonFatal(t *testing.T) {
	err := NewDeviceError("BAR_WRITE", 3, "unsupported BAR")
	require.False(t, err.Fatal())
	require.Equal(t, uint32(3), err.DevID)
	require.True(t, IsCode(err, CodeDevice))
}

func TestWrapError_PreservesInnerErrno(t *testing.T) {
	err := WrapError("SYNC_SYSMEM", CodeTransport, syscall.EBADF)
	require.True(t, errors.Is(err, err))
	require.Equal(t, syscall.EBADF, err.Errno)
	require.True(t, err.Fatal())
}

func TestWrapError_PropagatesExistingError(t *testing.T) {
	inner := NewDeviceError("DEVICE_ADD", 1, "driver not registered")
	wrapped := WrapError("ROUTE", CodeTransport, inner)
	require.Equal(t, CodeDevice, wrapped.Code)
	require.Equal(t, uint32(1), wrapped.DevID)
}

func TestWrapError_NilInnerReturnsNil(t *testing.T) {
	require.Nil(t, WrapError("op", CodeProtocol, nil))
}

func TestIsCode_MatchesOnlyGivenCategory(t *testing.T) {
	err := NewError("INIT", CodeResource, "out of eventfds")
	require.True(t, IsCode(err, CodeResource))
	require.False(t, IsCode(err, CodeDevice))
	require.False(t, IsCode(errors.New("plain"), CodeResource))
}

func TestErrorCode_FatalClassification(t *testing.T) {
	require.True(t, CodeTransport.Fatal())
	require.True(t, CodeProtocol.Fatal())
	require.True(t, CodeResource.Fatal())
	require.False(t, CodeDevice.Fatal())
}
