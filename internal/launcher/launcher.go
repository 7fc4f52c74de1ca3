// Package launcher spawns a service's command line in a fresh process
// group, the way a shell-interpreted init service must: by handing the
// whole line to /bin/sh rather than trying to parse it ourselves.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Spawn starts cmdline via "/bin/sh -c exec <cmdline>", placing the new
// process in its own process group (group id equal to its pid), and
// returns its pid.
//
// The "exec" prefix is load-bearing: it makes the shell replace itself
// with the target program via the exec(2) syscall, so the pid we get
// back from fork is the service's own pid, not an intermediate shell
// that then has to be tracked and killed separately.
func Spawn(cmdline string) (pid int, err error) {
	cmd := exec.Command("/bin/sh", "-c", "exec "+cmdline)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("cannot start: %w", err)
	}
	// cmd.Process.Release lets the process continue running
	// independently of this *exec.Cmd; the supervisor tracks it by pid
	// from here on and the reaper (not cmd.Wait) collects its exit.
	pid = cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		// The process is already running and in its own group; if we
		// can't hand it off to the reaper, it would otherwise keep
		// running untracked by any service. Kill the group so a spawn
		// error always means nothing was left behind, per contract.
		syscall.Kill(-pid, syscall.SIGKILL)
		return 0, fmt.Errorf("cannot release process handle: %w", err)
	}
	return pid, nil
}

// SignalGroup sends sig to the process group led by pid (i.e. to -pid),
// broadcasting to every descendant the service itself may have spawned.
// Callers should treat syscall.ESRCH ("no such process") as expected and
// silently ignore it: the group exited between the table read and the
// signal send.
func SignalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
