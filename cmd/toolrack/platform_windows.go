//go:build windows

package main

import "os"

const daemonBinaryName = "toolrackd.exe"

// Windows delivers no SIGTERM to detached processes, so a graceful stop is
// not distinguishable from a kill.
func terminateProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func killProcess(pid int) error {
	return terminateProcess(pid)
}
