// Command toolrackd serves the toolrack catalog on a unix socket in the
// background. A lock file keeps it single-instance; toolrack's client
// subcommands talk to it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/toolrack/toolrack/internal/app"
	"github.com/toolrack/toolrack/internal/config"
	"github.com/toolrack/toolrack/internal/daemon"
	"github.com/toolrack/toolrack/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("toolrackd", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	socketPath := fs.String("socket", "", "socket path, overriding config")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fail(err)
		}
		if err := loaded.Validate(); err != nil {
			return fail(err)
		}
		cfg = loaded
	}

	logger.Init(cfg.LoggerConfig())
	if err := config.EnsureDataDir(); err != nil {
		return fail(err)
	}

	socket := cfg.Transports.Socket.Path
	if *socketPath != "" {
		socket = *socketPath
	}
	if socket == "" {
		socket = config.DefaultSocketPath()
	}

	lm := daemon.NewLifecycleManager(config.DataDir(), socket)
	if err := lm.AcquireInstanceLock(); err != nil {
		if errors.Is(err, daemon.ErrLockHeld) {
			fmt.Println("daemon already running")
			return 0
		}
		return fail(err)
	}
	defer lm.Cleanup()

	if err := lm.RegisterRunningDaemon(); err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	eg, egCtx := errgroup.WithContext(ctx)

	d := daemon.NewDaemon(socket, a.Handler())
	eg.Go(func() error { return d.Run(egCtx) })

	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, cfg.Watch, func(next *config.Config) {
			a.Reload(next)
		})
		if err != nil {
			logger.ForComponent("daemon").Warn("config watching unavailable", "error", err)
		} else {
			eg.Go(func() error { return w.Run(egCtx) })
		}
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	return 0
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, "toolrackd:", err)
	return 1
}
