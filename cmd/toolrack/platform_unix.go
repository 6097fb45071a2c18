//go:build unix

package main

import "syscall"

const daemonBinaryName = "toolrackd"

// terminateProcess asks pid to shut down cleanly.
func terminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// killProcess force-kills pid after a graceful stop timed out.
func killProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
