package launcher_test

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"sima/internal/launcher"
)

func waitGone(t *testing.T, pid int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		// Spawn leaves collecting the exit to the caller, and an exited
		// but unreaped child still answers kill(pid, 0), so reap it here.
		var ws syscall.WaitStatus
		if wpid, _ := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil); wpid == pid {
			return
		}
		if err := syscall.Kill(pid, 0); err == syscall.ESRCH {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pid %d still alive after %s", pid, timeout)
}

func TestSpawnReturnsServicePidNotShellPid(t *testing.T) {
	pid, err := launcher.Spawn("sleep 5")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer syscall.Kill(-pid, syscall.SIGKILL)

	// The returned pid leads its own process group.
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		t.Fatalf("Getpgid: %v", err)
	}
	if pgid != pid {
		t.Fatalf("pgid = %d, want %d (own group leader)", pgid, pid)
	}

	// The shell should exec away, leaving the returned pid running the
	// service itself rather than /bin/sh.
	deadline := time.Now().Add(2 * time.Second)
	for {
		comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
		if err == nil && strings.TrimSpace(string(comm)) == "sleep" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pid %d runs %q, want the service (sleep), not the shell", pid, comm)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSignalGroupKillsTheWholeGroup(t *testing.T) {
	// The inner sleep is a grandchild spawned by the shell; signalling
	// the group must reach it too, not just the immediate child.
	pid, err := launcher.Spawn("sleep 5 & wait")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := launcher.SignalGroup(pid, syscall.SIGKILL); err != nil {
		t.Fatalf("SignalGroup: %v", err)
	}
	waitGone(t, pid, 2*time.Second)
	// A negative pid names the whole group: it is gone only once the
	// grandchild is gone too.
	waitGone(t, -pid, 2*time.Second)
}

func TestSignalGroupIgnoresAlreadyExited(t *testing.T) {
	pid, err := launcher.Spawn("exit 0")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	waitGone(t, pid, 2*time.Second)

	err = launcher.SignalGroup(pid, syscall.SIGTERM)
	if err != nil && err != syscall.ESRCH {
		t.Fatalf("got %v, want nil or ESRCH", err)
	}
}
