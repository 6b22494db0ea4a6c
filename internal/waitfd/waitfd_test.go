package waitfd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNotifyWait_RoundTrip(t *testing.T) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	require.NoError(t, err)
	defer unix.Close(fd)

	go func() {
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, Notify(fd, 123))
	}()

	v, err := Wait(fd)
	require.NoError(t, err)
	require.Equal(t, uint64(123), v)
}

func TestNotifyWait_Zero(t *testing.T) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, Notify(fd, 0))

	v, err := Wait(fd)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)
}

func TestNotifyWait_Failed(t *testing.T) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, Notify(fd, Failed))

	v, err := Wait(fd)
	require.NoError(t, err)
	require.Equal(t, Failed, v)
}

func TestWait_TimesOut(t *testing.T) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	require.NoError(t, err)
	defer unix.Close(fd)

	// Nothing ever posts on fd; Wait must give up after Timeout rather
	// than block forever.
	start := time.Now()
	_, err = Wait(fd)
	require.ErrorIs(t, err, ErrTimeout)
	require.GreaterOrEqual(t, time.Since(start), Timeout)
}

func TestPool_ReusesFDs(t *testing.T) {
	p := NewPool()
	defer p.Close()

	fd1, err := p.Get()
	require.NoError(t, err)
	p.Put(fd1)

	fd2, err := p.Get()
	require.NoError(t, err)
	require.Equal(t, fd1, fd2)
}
