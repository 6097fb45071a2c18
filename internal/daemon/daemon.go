// Package daemon runs the tool server behind a unix socket with
// single-instance lifecycle management, and provides the client used to talk
// to it.
package daemon

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/internal/mcp"
)

var log = logger.ForComponent("daemon")

// Daemon accepts connections on a unix socket and speaks the line protocol
// on each. The catalog arrives fully built inside the handler.
type Daemon struct {
	socketPath string
	listener   *SocketListener
	server     *mcp.Server

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once
	startTime    time.Time
}

func NewDaemon(socketPath string, handler *mcp.Handler) *Daemon {
	return &Daemon{
		socketPath: socketPath,
		listener:   NewSocketListener(socketPath),
		server:     mcp.NewServer(handler),
		conns:      make(map[net.Conn]struct{}),
		shutdown:   make(chan struct{}),
		startTime:  time.Now(),
	}
}

// Run serves until ctx is canceled or the listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.listener.Start(); err != nil {
		return err
	}
	log.Info("daemon listening", "socket", d.socketPath)

	acceptErr := make(chan error, 1)
	go d.acceptLoop(ctx, acceptErr)

	select {
	case <-ctx.Done():
		d.Shutdown()
		return ctx.Err()
	case err := <-acceptErr:
		d.Shutdown()
		return err
	}
}

func (d *Daemon) acceptLoop(ctx context.Context, fatal chan<- error) {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.shutdown:
			case fatal <- err:
			}
			return
		}

		d.connMu.Lock()
		d.conns[conn] = struct{}{}
		d.connMu.Unlock()

		go d.handleConn(ctx, conn)
	}
}

func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		d.connMu.Lock()
		delete(d.conns, conn)
		d.connMu.Unlock()
	}()

	ctx = mcp.WithRequestContext(ctx, mcp.RequestContext{Transport: "socket"})
	if err := d.server.ProcessStream(ctx, conn, conn); err != nil && ctx.Err() == nil {
		log.Debug("connection ended", "error", err)
	}
}

// Shutdown closes the listener and every open connection. Safe to call more
// than once.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		close(d.shutdown)
		d.listener.Close()

		d.connMu.Lock()
		for conn := range d.conns {
			conn.Close()
		}
		d.connMu.Unlock()

		log.Info("daemon stopped", "uptime", d.Uptime().Round(time.Second))
	})
}

func (d *Daemon) SocketPath() string {
	return d.socketPath
}

func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.startTime)
}
