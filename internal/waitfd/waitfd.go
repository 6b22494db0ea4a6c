// Package waitfd implements the synchronous reply primitive used by
// commands that need a value back from the remote device before the
// proxy can continue: an eventfd-backed counter with a +1-on-write,
// -1-on-read shift so a legitimate zero value is distinguishable from
// "nothing posted yet", and a reserved all-ones sentinel for failure.
package waitfd

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Failed is the sentinel value Wait returns when the handler posted a
// failure instead of a real result.
const Failed = ^uint64(0)

// Timeout is how long Wait blocks for a post before giving up.
const Timeout = 1 * time.Second

var ErrTimeout = errors.New("waitfd: timed out waiting for reply")

// Notify posts v on fd using the +1 shift convention. v == Failed posts
// the failure sentinel verbatim (shifting it would overflow back to 0).
func Notify(fd int, v uint64) error {
	var encoded uint64
	if v == Failed {
		encoded = Failed
	} else {
		encoded = v + 1
	}
	return write(fd, encodeU64(encoded))
}

// Wait blocks for up to Timeout for a post on fd and returns the
// un-shifted value, or Failed if the poster signaled failure.
func Wait(fd int) (uint64, error) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	deadline := time.Now().Add(Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, ErrTimeout
		}
		// Round up so a sub-millisecond remainder is not truncated away.
		ms := int((remaining + time.Millisecond - 1) / time.Millisecond)
		n, err := unix.Poll(pfd, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		if n == 0 {
			continue
		}
		break
	}

	buf := make([]byte, 8)
	if err := readFull(fd, buf); err != nil {
		return 0, err
	}
	encoded := decodeU64(buf)
	if encoded == Failed {
		return Failed, nil
	}
	if encoded == 0 {
		return 0, errors.New("waitfd: spurious wake with no value posted")
	}
	return encoded - 1, nil
}

func readFull(fd int, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return errors.New("waitfd: unexpected EOF")
		}
		total += n
	}
	return nil
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func decodeU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// write is a unix.Write wrapper that retries on EINTR.
func write(fd int, b []byte) error {
	for {
		_, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// Pool recycles eventfds used as wait-fds so a request's synchronous
// reply path does not allocate (and syscall-create) a fresh fd per
// call.
type Pool struct {
	mu   sync.Mutex
	free []int
}

// NewPool returns an empty wait-fd pool.
func NewPool() *Pool { return &Pool{} }

// Get returns a ready-to-use eventfd, creating one if the pool is empty.
func (p *Pool) Get() (int, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		fd := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return fd, nil
	}
	p.mu.Unlock()
	return unix.Eventfd(0, unix.EFD_CLOEXEC)
}

// Put returns fd to the pool for reuse. Its counter must already be
// drained (Wait does this as a side effect of a normal reply).
func (p *Pool) Put(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, fd)
}

// Close drains and closes every pooled fd.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fd := range p.free {
		unix.Close(fd)
	}
	p.free = nil
}
