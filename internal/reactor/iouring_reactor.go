//go:build giouring

package reactor

import (
	"context"
	"sync"

	"github.com/pawelgaczynski/giouring"
)

// ringReactor backs the Reactor interface with io_uring POLL_ADD/CQE
// draining. io_uring poll is one-shot, so each fd is re-armed after it
// fires.
type ringReactor struct {
	mu    sync.Mutex
	ring  *giouring.Ring
	masks map[int]Event
}

// New returns the io_uring-backed Reactor for this build.
func New() (Reactor, error) {
	ring, err := giouring.CreateRing(64)
	if err != nil {
		return nil, err
	}
	r := &ringReactor{ring: ring, masks: make(map[int]Event)}
	return r, nil
}

func (r *ringReactor) Register(fd int, mask Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.masks[fd] = mask
	return r.arm(fd, mask)
}

func (r *ringReactor) arm(fd int, mask Event) error {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		if _, err := r.ring.Submit(); err != nil {
			return err
		}
		sqe = r.ring.GetSQE()
	}
	sqe.PrepPollAdd(int32(fd), toPollMask(mask))
	sqe.UserData = uint64(fd)
	_, err := r.ring.SubmitAndWait(0)
	return err
}

func (r *ringReactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.masks, fd)
	sqe := r.ring.GetSQE()
	if sqe != nil {
		sqe.PrepPollRemove(uint64(fd))
		_, _ = r.ring.SubmitAndWait(0)
	}
	return nil
}

func (r *ringReactor) Wait(ctx context.Context) ([]Ready, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cqe, err := r.ring.WaitCQETimeout(250_000_000) // 250ms in ns
		if err != nil {
			if err == giouring.ErrTimeout {
				continue
			}
			return nil, err
		}

		fd := int(cqe.UserData)
		res := cqe.Res
		r.ring.CQESeen(cqe)

		r.mu.Lock()
		mask, ok := r.masks[fd]
		r.mu.Unlock()
		if !ok {
			continue
		}

		ev := fromPollRes(res)
		// poll is one-shot: re-arm for next readiness unless the peer
		// hung up or errored.
		if ev&(EventHangup|EventError) == 0 {
			_ = r.arm(fd, mask)
		}
		return []Ready{{FD: fd, Events: ev}}, nil
	}
}

func (r *ringReactor) Close() error {
	r.ring.QueueExit()
	return nil
}

func toPollMask(mask Event) uint32 {
	var m uint32
	if mask&EventReadable != 0 {
		m |= giouring.POLLIN
	}
	return m
}

func fromPollRes(res int32) Event {
	var e Event
	if res < 0 {
		return EventError
	}
	r := uint32(res)
	if r&giouring.POLLIN != 0 {
		e |= EventReadable
	}
	if r&giouring.POLLHUP != 0 {
		e |= EventHangup
	}
	if r&giouring.POLLERR != 0 {
		e |= EventError
	}
	return e
}
