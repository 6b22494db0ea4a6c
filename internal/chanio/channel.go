// Package chanio implements the duplex, FD-passing UNIX socket channel
// that carries one side of a Link (the control channel or the MMIO
// channel).
package chanio

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nqminds/remote-dev-plane/internal/wire"
)

// Channel wraps a *net.UnixConn with independent send and recv locks, so
// a reply can be written on one channel while a read is blocked on the
// other, and so concurrent writers on the same channel never interleave
// envelopes.
type Channel struct {
	conn    *net.UnixConn
	sendMu  sync.Mutex
	recvMu  sync.Mutex
	rawFD   int
	closeMu sync.Mutex
	closed  bool
}

// New wraps an already-connected UNIX socket. rawFD is the descriptor's
// numeric value, used only for reactor registration; the Channel never
// closes it directly, it closes conn instead.
func New(conn *net.UnixConn) (*Channel, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var fd int
	ctrlErr := rawConn.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return nil, ctrlErr
	}
	return &Channel{conn: conn, rawFD: fd}, nil
}

// FD returns the channel's underlying file descriptor, for reactor
// registration only.
func (c *Channel) FD() int { return c.rawFD }

// Send writes f on the channel, serialized against other senders.
func (c *Channel) Send(f *wire.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	for {
		err := wire.Send(c.conn, f)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
}

// Recv reads the next frame from the channel, serialized against other
// readers (in practice there is exactly one reader: the Link's loop).
func (c *Channel) Recv() (*wire.Frame, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	for {
		f, err := wire.Recv(c.conn)
		if err == nil || !isRetryable(err) {
			return f, err
		}
	}
}

// Close tears down the underlying socket. Safe to call more than once.
func (c *Channel) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func isRetryable(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}
