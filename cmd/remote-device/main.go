// Command remote-device is the out-of-process device emulator started
// by a hypervisor proxy for each remote device plane. It expects two
// pre-opened, already-connected UNIX stream socket file descriptors —
// the control channel and the MMIO channel — passed as its first two
// positional arguments. Any remaining arguments are driver names; each
// is checked against the built-in factories and an unknown one is
// logged.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	remotedev "github.com/nqminds/remote-dev-plane"
	"github.com/nqminds/remote-dev-plane/internal/logging"
	"github.com/nqminds/remote-dev-plane/internal/pcidev"
)

func main() {
	var verbose = flag.Bool("v", false, "verbose output")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: remote-device <control-fd> <mmio-fd> [driver ...]\n")
		os.Exit(2)
	}

	controlFD, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid control fd %q: %v\n", args[0], err)
		os.Exit(2)
	}
	mmioFD, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid mmio fd %q: %v\n", args[1], err)
		os.Exit(2)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	factories := pcidev.NewFactoryRegistry()
	factories.Register("lsi53c895a", pcidev.NewLSI53C895AFactory())
	factories.Register("e1000", pcidev.NewE1000Factory())
	registerRequestedDrivers(logger, factories, args[2:])

	remote, err := remotedev.Serve(controlFD, mmioFD, remotedev.Options{
		Logger:    logger,
		Factories: factories,
	})
	if err != nil {
		logger.Error("failed to start remote device plane", append([]any{"error", err}, logging.ErrFields(err)...)...)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("remote device plane serving", "control_fd", controlFD, "mmio_fd", mmioFD, "pid", os.Getpid())

	if err := remote.Run(ctx); err != nil {
		logger.Error("link terminated", "error", err)
		os.Exit(1)
	}
	logger.Info("link closed")
}

// registerRequestedDrivers is a no-op placeholder for driver names
// passed on argv beyond the two required fds: both built-in factories
// are always registered, so there is nothing left to wire up unless a
// name is unrecognized, in which case it's logged and ignored — the
// proxy still drives DEVICE_ADD/DEV_OPTS to actually instantiate one.
func registerRequestedDrivers(logger *logging.Logger, factories *pcidev.FactoryRegistry, names []string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := factories.Lookup(name); !ok {
			logger.Warn("no builtin factory for requested driver", "driver", name)
		}
	}
}
