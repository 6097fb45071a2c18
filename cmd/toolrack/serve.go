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
	"github.com/toolrack/toolrack/internal/mcp"
	"github.com/toolrack/toolrack/internal/transport"
)

func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	stdio := fs.Bool("stdio", false, "serve on stdin/stdout")
	httpAddr := fs.String("http", "", "HTTP listen address")
	sseAddr := fs.String("sse", "", "SSE listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadServeConfig(*configPath, *stdio, *httpAddr, *sseAddr)
	if err != nil {
		return fail(err)
	}

	logger.Init(cfg.LoggerConfig())
	if err := config.EnsureDataDir(); err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	return serveTransports(ctx, a, cfg, *configPath)
}

// loadServeConfig overlays the transport flags onto the config. Any
// transport flag replaces the config's transport set entirely, so
// "serve --stdio" cannot accidentally open ports from a config file.
func loadServeConfig(path string, stdio bool, httpAddr, sseAddr string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if stdio || httpAddr != "" || sseAddr != "" {
		cfg.Transports.Stdio = stdio
		cfg.Transports.HTTP.Enabled = httpAddr != ""
		if httpAddr != "" {
			cfg.Transports.HTTP.Addr = httpAddr
		}
		cfg.Transports.SSE.Enabled = sseAddr != ""
		if sseAddr != "" {
			cfg.Transports.SSE.Addr = sseAddr
		}
		cfg.Transports.Socket.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveTransports(parent context.Context, a *app.App, cfg *config.Config, configPath string) int {
	t := cfg.Transports
	if !t.Stdio && !t.HTTP.Enabled && !t.SSE.Enabled && !t.Socket.Enabled {
		return fail(errors.New("no transports enabled"))
	}

	log := logger.ForComponent("cli")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var httpSrv *transport.Server
	if t.HTTP.Enabled || t.SSE.Enabled {
		httpSrv = transport.NewServer(transport.Options{
			Catalog:     a.Catalog(),
			ServerName:  cfg.Server.Name,
			ExecTimeout: cfg.Server.ExecTimeout.Std(),
			Retry:       cfg.RetryPolicy(),
			Expose:      cfg.Expose,
			MaxSessions: t.SSE.MaxSessions,
			Metrics:     cfg.Metrics.Enabled,
		})
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if t.Stdio {
		eg.Go(func() error {
			// A closed stdin means the client hung up; stop the rest.
			defer cancel()
			if err := mcp.NewServer(a.Handler()).ProcessStream(egCtx, os.Stdin, os.Stdout); err != nil {
				return fmt.Errorf("stdio transport: %w", err)
			}
			return nil
		})
	}
	if t.HTTP.Enabled {
		eg.Go(func() error {
			return transport.ListenAndServe(egCtx, t.HTTP.Addr, httpSrv.HTTPHandler())
		})
	}
	if t.SSE.Enabled {
		eg.Go(func() error {
			return transport.ListenAndServe(egCtx, t.SSE.Addr, httpSrv.SSEHandler())
		})
	}
	if t.Socket.Enabled {
		d := daemon.NewDaemon(t.Socket.Path, a.Handler())
		eg.Go(func() error { return d.Run(egCtx) })
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, cfg.Watch, func(next *config.Config) {
			if next.Transports != cfg.Transports {
				log.Warn("transport changes need a restart")
			}
			a.Reload(next)
		})
		if err != nil {
			log.Warn("config watching unavailable", "error", err)
		} else {
			eg.Go(func() error { return w.Run(egCtx) })
		}
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	return 0
}
