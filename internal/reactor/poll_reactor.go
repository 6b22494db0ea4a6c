//go:build !giouring

package reactor

import (
	"context"
	"sync"

	"golang.org/x/sys/unix"
)

// pollReactor is the portable default: a thin wrapper over unix.Poll.
// Built whenever the giouring tag is absent.
type pollReactor struct {
	mu   sync.Mutex
	fds  map[int]Event
	wake [2]int // self-pipe so Wait can be interrupted by Deregister/Close
}

// New returns the default Reactor implementation for this build.
func New() (Reactor, error) {
	r := &pollReactor{fds: make(map[int]Event)}
	p := make([]int, 2)
	if err := unix.Pipe2(p, unix.O_NONBLOCK); err != nil {
		return nil, err
	}
	r.wake[0], r.wake[1] = p[0], p[1]
	return r, nil
}

func (r *pollReactor) Register(fd int, mask Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fds[fd] = mask
	r.nudge()
	return nil
}

func (r *pollReactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fds, fd)
	r.nudge()
	return nil
}

func (r *pollReactor) nudge() {
	var b [1]byte
	_, _ = unix.Write(r.wake[1], b[:])
}

func (r *pollReactor) Wait(ctx context.Context) ([]Ready, error) {
	for {
		r.mu.Lock()
		pfds := make([]unix.PollFd, 0, len(r.fds)+1)
		order := make([]int, 0, len(r.fds))
		for fd, mask := range r.fds {
			pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(mask)})
			order = append(order, fd)
		}
		r.mu.Unlock()
		pfds = append(pfds, unix.PollFd{Fd: int32(r.wake[0]), Events: unix.POLLIN})

		n, err := unix.Poll(pfds, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if n == 0 {
			continue
		}

		var drainWake bool
		var ready []Ready
		for i, pfd := range pfds {
			if pfd.Revents == 0 {
				continue
			}
			if i == len(pfds)-1 {
				drainWake = true
				continue
			}
			ready = append(ready, Ready{FD: order[i], Events: fromPollEvents(pfd.Revents)})
		}
		if drainWake {
			var b [64]byte
			for {
				n, _ := unix.Read(r.wake[0], b[:])
				if n <= 0 {
					break
				}
			}
		}
		if len(ready) > 0 {
			return ready, nil
		}
	}
}

func (r *pollReactor) Close() error {
	unix.Close(r.wake[0])
	unix.Close(r.wake[1])
	return nil
}

func toPollEvents(mask Event) int16 {
	var e int16
	if mask&EventReadable != 0 {
		e |= unix.POLLIN
	}
	return e
}

func fromPollEvents(revents int16) Event {
	var e Event
	if revents&unix.POLLIN != 0 {
		e |= EventReadable
	}
	if revents&unix.POLLHUP != 0 {
		e |= EventHangup
	}
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		e |= EventError
	}
	return e
}
