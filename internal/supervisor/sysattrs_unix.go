//go:build !windows

package supervisor

import "syscall"

// detachedSysProcAttr places the child in its own session so it outlives
// control-plane restarts.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// terminate sends SIGTERM to pid.
func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
