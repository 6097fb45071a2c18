package daemon

import (
	"path/filepath"
	"time"
)

// LifecycleManager holds the lock, pid, and socket facts that make the
// daemon single-instance and discoverable.
type LifecycleManager struct {
	lockFile   *LockFile
	pidFile    *PIDFile
	socketPath string
}

func NewLifecycleManager(baseDir, socketPath string) *LifecycleManager {
	return &LifecycleManager{
		lockFile:   NewLockFile(filepath.Join(baseDir, "daemon.lock")),
		pidFile:    NewPIDFile(filepath.Join(baseDir, "daemon.pid")),
		socketPath: socketPath,
	}
}

// AcquireInstanceLock claims exclusive ownership. ErrLockHeld means another
// instance is already up.
func (lm *LifecycleManager) AcquireInstanceLock() error {
	return lm.lockFile.Acquire()
}

// RegisterRunningDaemon writes the pid file once the socket is up.
func (lm *LifecycleManager) RegisterRunningDaemon() error {
	return lm.pidFile.Write()
}

// Cleanup removes the pid file and releases the lock.
func (lm *LifecycleManager) Cleanup() {
	lm.pidFile.Remove()
	lm.lockFile.Release()
}

// DaemonStatus is what an outside process can observe about a daemon.
type DaemonStatus struct {
	PID        int
	Alive      bool
	Responsive bool
	SocketPath string
}

// Status probes the pid file and the socket without taking the lock, so it
// is safe to call while a daemon runs.
func (lm *LifecycleManager) Status() DaemonStatus {
	pid, _ := lm.pidFile.Read()
	return DaemonStatus{
		PID:        pid,
		Alive:      lm.pidFile.IsProcessAlive(),
		Responsive: lm.socketResponsive(),
		SocketPath: lm.socketPath,
	}
}

func (lm *LifecycleManager) socketResponsive() bool {
	conn, err := NewSocketConnector(lm.socketPath, 500*time.Millisecond).Connect()
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (lm *LifecycleManager) PIDFile() *PIDFile {
	return lm.pidFile
}
