package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/toolrack/toolrack/internal/config"
	"github.com/toolrack/toolrack/internal/daemon"
)

func cmdDaemon(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: toolrack daemon start|stop|status")
		return 2
	}
	switch args[0] {
	case "start":
		return cmdDaemonStart(args[1:])
	case "stop":
		return cmdDaemonStop(args[1:])
	case "status":
		return cmdDaemonStatus(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "toolrack daemon: unknown subcommand %q\n", args[0])
		return 2
	}
}

func cmdDaemonStart(args []string) int {
	fs := flag.NewFlagSet("daemon start", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file passed to the daemon")
	socket := fs.String("socket", config.DefaultSocketPath(), "daemon socket path")
	wait := fs.Duration("wait", 5*time.Second, "how long to wait for the socket")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	lm := daemon.NewLifecycleManager(config.DataDir(), *socket)
	if st := lm.Status(); st.Alive {
		fmt.Printf("daemon already running (pid %d)\n", st.PID)
		return 0
	}

	path, err := daemonBinaryPath()
	if err != nil {
		return fail(err)
	}
	var argv []string
	if *configPath != "" {
		argv = append(argv, "--config", *configPath)
	}
	cmd := exec.Command(path, argv...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("start %s: %w", path, err))
	}
	pid := cmd.Process.Pid
	cmd.Process.Release()

	if err := waitForSocket(*socket, *wait); err != nil {
		return fail(err)
	}
	fmt.Printf("daemon started (pid %d)\n", pid)
	return 0
}

func cmdDaemonStop(args []string) int {
	fs := flag.NewFlagSet("daemon stop", flag.ContinueOnError)
	socket := fs.String("socket", config.DefaultSocketPath(), "daemon socket path")
	wait := fs.Duration("wait", 5*time.Second, "grace period before force-killing")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	lm := daemon.NewLifecycleManager(config.DataDir(), *socket)
	st := lm.Status()
	if !st.Alive {
		fmt.Println("daemon not running")
		return 0
	}

	if err := terminateProcess(st.PID); err != nil {
		return fail(fmt.Errorf("signal pid %d: %w", st.PID, err))
	}
	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		if !lm.Status().Alive {
			fmt.Println("daemon stopped")
			return 0
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := killProcess(st.PID); err != nil {
		return fail(fmt.Errorf("kill pid %d: %w", st.PID, err))
	}
	fmt.Println("daemon killed")
	return 0
}

func cmdDaemonStatus(args []string) int {
	fs := flag.NewFlagSet("daemon status", flag.ContinueOnError)
	socket := fs.String("socket", config.DefaultSocketPath(), "daemon socket path")
	asJSON := fs.Bool("json", false, "print the raw status")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	lm := daemon.NewLifecycleManager(config.DataDir(), *socket)
	st := lm.Status()
	if *asJSON {
		if err := printJSON(st); err != nil {
			return fail(err)
		}
		return 0
	}
	if !st.Alive {
		fmt.Println("daemon not running")
		return 1
	}
	fmt.Printf("daemon running (pid %d)\n", st.PID)
	if st.Responsive {
		fmt.Printf("socket %s answering\n", st.SocketPath)
	} else {
		fmt.Printf("socket %s not answering\n", st.SocketPath)
	}
	return 0
}

// daemonBinaryPath finds toolrackd next to the running binary, then on PATH.
func daemonBinaryPath() (string, error) {
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), daemonBinaryName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(daemonBinaryName); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("cannot find %s next to toolrack or on PATH", daemonBinaryName)
}

func waitForSocket(path string, timeout time.Duration) error {
	connector := daemon.NewSocketConnector(path, 500*time.Millisecond)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if conn, err := connector.Connect(); err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon socket %s not ready after %v", path, timeout)
}
