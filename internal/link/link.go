// Package link implements the single-threaded event loop that owns the
// control and MMIO channels to one connected proxy, draining whichever
// channel has a frame ready and handing it to a Dispatcher.
package link

import (
	"context"
	"errors"
	"sync"

	"github.com/nqminds/remote-dev-plane/internal/chanio"
	"github.com/nqminds/remote-dev-plane/internal/ifaces"
	"github.com/nqminds/remote-dev-plane/internal/reactor"
	"github.com/nqminds/remote-dev-plane/internal/wire"
)

// Side identifies which of a Link's two channels a frame arrived on or
// should be sent on.
type Side int

const (
	Control Side = iota
	MMIO
)

// Dispatcher handles one decoded frame. Any non-nil error it returns
// tears the link down; a Dispatcher that wants the loop to continue
// after a non-fatal error logs it itself and returns nil.
type Dispatcher interface {
	Handle(ctx context.Context, f *wire.Frame, side Side, reply Replier) error
}

// Replier is the subset of Link a Dispatcher needs to send replies.
type Replier interface {
	SendControl(f *wire.Frame) error
	SendMMIO(f *wire.Frame) error
}

// Link owns the control and MMIO channels for one connected proxy.
type Link struct {
	com, mmio *chanio.Channel
	reactor   reactor.Reactor
	dispatch  Dispatcher
	logger    ifaces.Logger
	observer  ifaces.Observer

	closeOnce sync.Once
}

// Config configures a new Link.
type Config struct {
	Control, MMIO *chanio.Channel
	Reactor       reactor.Reactor
	Dispatcher    Dispatcher
	Logger        ifaces.Logger
	Observer      ifaces.Observer
}

// New constructs a Link and registers both channels with the reactor.
func New(cfg Config) (*Link, error) {
	l := &Link{
		com:      cfg.Control,
		mmio:     cfg.MMIO,
		reactor:  cfg.Reactor,
		dispatch: cfg.Dispatcher,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
	if l.observer == nil {
		l.observer = noopObserver{}
	}
	if err := l.reactor.Register(l.com.FD(), reactor.EventReadable); err != nil {
		return nil, err
	}
	if err := l.reactor.Register(l.mmio.FD(), reactor.EventReadable); err != nil {
		return nil, err
	}
	return l, nil
}

// SendControl implements Replier.
func (l *Link) SendControl(f *wire.Frame) error { return l.sendOn(l.com, f) }

// SendMMIO implements Replier.
func (l *Link) SendMMIO(f *wire.Frame) error { return l.sendOn(l.mmio, f) }

func (l *Link) sendOn(ch *chanio.Channel, f *wire.Frame) error {
	payload := uint64(wire.EnvelopeSize)
	if f.Header.Bytestream != 0 {
		payload += uint64(len(f.Data))
	}
	err := ch.Send(f)
	if err == nil {
		l.observer.ObserveFrameOut(payload)
	}
	return err
}

// Run drains ready channels and dispatches frames until ctx is
// cancelled or a fatal error tears the link down. A Link is not
// restartable: once Run returns, both channels are closed.
func (l *Link) Run(ctx context.Context) error {
	defer l.teardown()
	for {
		ready, err := l.reactor.Wait(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		for _, r := range ready {
			if r.Events&(reactor.EventHangup|reactor.EventError) != 0 {
				return nil
			}
			side, ch := l.sideFor(r.FD)
			if ch == nil {
				continue
			}
			if err := l.drainOne(ctx, side, ch); err != nil {
				if l.logger != nil {
					l.logger.Error("link teardown", "error", err)
				}
				return err
			}
		}
	}
}

func (l *Link) sideFor(fd int) (Side, *chanio.Channel) {
	switch fd {
	case l.com.FD():
		return Control, l.com
	case l.mmio.FD():
		return MMIO, l.mmio
	default:
		return 0, nil
	}
}

func (l *Link) drainOne(ctx context.Context, side Side, ch *chanio.Channel) error {
	f, err := ch.Recv()
	if err != nil {
		return err
	}
	defer f.Release()

	payload := uint64(wire.EnvelopeSize)
	if f.Header.Bytestream != 0 {
		payload += uint64(len(f.Data))
	}
	l.observer.ObserveFrameIn(payload)

	return l.dispatch.Handle(ctx, f, side, l)
}

func (l *Link) teardown() {
	l.closeOnce.Do(func() {
		_ = l.com.Close()
		_ = l.mmio.Close()
		_ = l.reactor.Close()
	})
}

type noopObserver struct{}

func (noopObserver) ObserveCommand(cmd uint32, latencyNs uint64, success bool) {}
func (noopObserver) ObserveFrameIn(bytes uint64)                              {}
func (noopObserver) ObserveFrameOut(bytes uint64)                             {}
