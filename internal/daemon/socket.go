package daemon

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// SocketListener owns the unix socket. Start clears any stale socket left by
// a crashed instance and restricts the new one to the owning user.
type SocketListener struct {
	path     string
	listener net.Listener
}

func NewSocketListener(socketPath string) *SocketListener {
	return &SocketListener{path: socketPath}
}

func (sl *SocketListener) Start() error {
	dir := filepath.Dir(sl.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	if err := os.Remove(sl.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	listener, err := net.Listen("unix", sl.path)
	if err != nil {
		return err
	}

	sl.listener = listener
	return os.Chmod(sl.path, 0o700)
}

func (sl *SocketListener) Accept() (net.Conn, error) {
	if sl.listener == nil {
		return nil, fmt.Errorf("listener not started")
	}
	return sl.listener.Accept()
}

func (sl *SocketListener) Close() error {
	if sl.listener == nil {
		return nil
	}
	return sl.listener.Close()
}

func (sl *SocketListener) Path() string {
	return sl.path
}

// SocketConnector dials the daemon socket with a bounded wait.
type SocketConnector struct {
	path    string
	timeout time.Duration
}

func NewSocketConnector(socketPath string, timeout time.Duration) *SocketConnector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SocketConnector{path: socketPath, timeout: timeout}
}

func (sc *SocketConnector) Connect() (net.Conn, error) {
	return net.DialTimeout("unix", sc.path, sc.timeout)
}
