// Package platform isolates the handful of irreversible, PID-1-only
// syscalls the shutdown coordinator needs — syncing, rebooting, powering
// off, and replacing the running image for a soft reboot — behind an
// interface so internal/supervisor can be tested against a fake.
package platform

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Platform is the set of irreversible system actions the shutdown
// coordinator may take once every service has been stopped.
type Platform interface {
	// Sync flushes filesystem buffers and blocks until done or until an
	// internal timeout elapses, whichever comes first.
	Sync()
	// Poweroff powers down the machine. Only returns on failure.
	Poweroff() error
	// Reboot restarts the machine. Only returns on failure.
	Reboot() error
	// SoftReboot replaces the current process image with a fresh copy
	// of the running executable, re-exec'ing with the given args in
	// place of the exited supervisor. Only returns on failure.
	SoftReboot(args []string) error
}

// Linux is the real Platform, backed by the reboot(2) syscall family.
type Linux struct{}

var _ Platform = Linux{}

// syncTimeout bounds how long Sync waits for buffers to flush before
// giving up and letting the caller proceed regardless.
const syncTimeout = 25 * time.Second

func (Linux) Sync() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		unix.Sync()
	}()
	select {
	case <-done:
	case <-time.After(syncTimeout):
	}
}

func (Linux) Poweroff() error {
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF); err != nil {
		return fmt.Errorf("cannot power off: %w", err)
	}
	return nil
}

func (Linux) Reboot() error {
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("cannot reboot: %w", err)
	}
	return nil
}

// SoftReboot re-execs the current binary in place, giving sima a fresh
// process image (new heap, reopened log files, reloaded manifest)
// without returning control to the kernel's own boot sequence. The pid
// stays 1, so no new process is ever forked for it.
func (Linux) SoftReboot(args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot determine own executable path: %w", err)
	}
	if err := syscall.Exec(exe, args, os.Environ()); err != nil {
		return fmt.Errorf("cannot re-exec %s: %w", exe, err)
	}
	return nil // unreachable on success
}
