package remotedev

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/nqminds/remote-dev-plane/internal/chanio"
	"github.com/nqminds/remote-dev-plane/internal/dispatch"
	"github.com/nqminds/remote-dev-plane/internal/ifaces"
	"github.com/nqminds/remote-dev-plane/internal/link"
	"github.com/nqminds/remote-dev-plane/internal/pcidev"
	"github.com/nqminds/remote-dev-plane/internal/reactor"
	"github.com/nqminds/remote-dev-plane/internal/registry"
	"github.com/nqminds/remote-dev-plane/internal/sysmem"
	"github.com/nqminds/remote-dev-plane/internal/waitfd"
)

// Migrator is the injected seam for the out-of-scope savevm/loadvm
// primitive that START_MIG_OUT/START_MIG_IN drive. A nil Migrator
// causes the remote to reject migration commands with a device error.
type Migrator = dispatch.Migrator

// Options configures Serve.
type Options struct {
	// Logger receives link/dispatcher diagnostics. Nil disables logging.
	Logger ifaces.Logger

	// Observer receives per-frame and per-command metrics. Nil defaults
	// to a Metrics instance retrievable via Remote.Metrics.
	Observer ifaces.Observer

	// Migrator backs START_MIG_OUT/START_MIG_IN. Nil rejects both.
	Migrator Migrator

	// Factories registers the PCI device types DEVICE_ADD may
	// instantiate. Required — Serve returns an error if nil.
	Factories *pcidev.FactoryRegistry
}

// Remote is a running control/MMIO link to one connected proxy, plus
// the device registry and metrics backing it.
type Remote struct {
	link     *link.Link
	registry *registry.Registry
	metrics  *Metrics
}

// Registry returns the device table backing this remote.
func (r *Remote) Registry() *registry.Registry { return r.registry }

// Metrics returns the metrics instance backing this remote's frames,
// or nil if Options.Observer overrode the default.
func (r *Remote) Metrics() *Metrics { return r.metrics }

// Run drives the remote's event loop until ctx is cancelled or a fatal
// transport error tears the link down. It does not return until the
// link is done; callers typically run it in its own goroutine.
func (r *Remote) Run(ctx context.Context) error {
	return r.link.Run(ctx)
}

// Serve wires a control fd and an MMIO fd — both pre-opened, connected
// UNIX stream sockets, as handed to this process by the hypervisor
// proxy that spawned it — into a running Remote. Serve itself does not
// block; call Remote.Run to drive the event loop.
func Serve(controlFD, mmioFD int, opts Options) (*Remote, error) {
	if opts.Factories == nil {
		return nil, NewError("Serve", CodeResource, "no device factories registered")
	}

	controlConn, err := fdToUnixConn(controlFD)
	if err != nil {
		return nil, WrapError("Serve", CodeTransport, err)
	}
	mmioConn, err := fdToUnixConn(mmioFD)
	if err != nil {
		return nil, WrapError("Serve", CodeTransport, err)
	}

	controlCh, err := chanio.New(controlConn)
	if err != nil {
		return nil, WrapError("Serve", CodeTransport, err)
	}
	mmioCh, err := chanio.New(mmioConn)
	if err != nil {
		return nil, WrapError("Serve", CodeTransport, err)
	}

	react, err := reactor.New()
	if err != nil {
		return nil, WrapError("Serve", CodeTransport, err)
	}

	metrics := NewMetrics()
	var observer ifaces.Observer = metrics
	if opts.Observer != nil {
		observer = opts.Observer
	}

	reg := registry.New()
	dispatcher := dispatch.New(dispatch.Config{
		Registry:  reg,
		Factories: opts.Factories,
		Sysmem:    sysmem.NewTable(),
		WaitPool:  waitfd.NewPool(),
		Migrator:  opts.Migrator,
		Logger:    opts.Logger,
		Observer:  observer,
	})

	lnk, err := link.New(link.Config{
		Control:    controlCh,
		MMIO:       mmioCh,
		Reactor:    react,
		Dispatcher: dispatcher,
		Logger:     opts.Logger,
		Observer:   observer,
	})
	if err != nil {
		return nil, WrapError("Serve", CodeTransport, err)
	}

	var reportedMetrics *Metrics
	if m, ok := observer.(*Metrics); ok {
		reportedMetrics = m
	}

	return &Remote{link: lnk, registry: reg, metrics: reportedMetrics}, nil
}

// fdToUnixConn wraps an already-open, already-connected socket fd (as
// inherited from a parent process) in a *net.UnixConn. The returned
// conn owns fd; closing it closes fd.
func fdToUnixConn(fd int) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), fmt.Sprintf("remotedev-fd-%d", fd))
	if f == nil {
		return nil, fmt.Errorf("remotedev: invalid fd %d", fd)
	}
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("remotedev: fd %d is not a unix socket", fd)
	}
	return unixConn, nil
}
