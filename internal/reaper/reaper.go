// Package reaper turns the process into a Linux child subreaper and
// notifies the caller whenever there may be exited children to collect,
// without itself deciding what those children mean to the rest of the
// program.
//
// Collecting the actual exit statuses (via ReapAll) is kept separate
// from the SIGCHLD-driven notification goroutine so that the caller —
// the supervisor event loop — can do both the waiting and the service
// table update from its own single goroutine, the only place allowed
// to mutate the table. Unlike a reaper that only reaps pids someone
// registered an explicit wait on, this one hands the caller a coalesced
// wake-up signal plus a generic drain primitive, because every exited
// child here — not just ones something is explicitly waiting on — must
// be dispatched into the service table or logged as an orphan.
package reaper

import (
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"gopkg.in/tomb.v2"

	"sima/internal/logger"
)

// Reaper notifies of SIGCHLD and drains exited children on request.
type Reaper struct {
	tmb    tomb.Tomb
	notify chan struct{}
}

// Start marks the current process as a child subreaper (so reparented
// orphans land on us rather than on pid 1's original parent chain) and
// begins listening for SIGCHLD.
func Start() (*Reaper, error) {
	err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
	if err == unix.EINVAL {
		return nil, fmt.Errorf("child subreaping unavailable on this platform")
	}
	if err != nil {
		return nil, fmt.Errorf("cannot set child subreaper: %w", err)
	}

	r := &Reaper{notify: make(chan struct{}, 1)}
	r.tmb.Go(r.watch)
	return r, nil
}

// Notify returns a channel that receives a value whenever SIGCHLD has
// been observed since the last receive. It is coalesced: one value may
// represent many exited children, so callers must drain with ReapAll
// until it reports no more children rather than assuming one exit per
// notification.
func (r *Reaper) Notify() <-chan struct{} {
	return r.notify
}

// Stop stops listening for SIGCHLD.
func (r *Reaper) Stop() error {
	r.tmb.Kill(nil)
	return r.tmb.Wait()
}

func (r *Reaper) watch() error {
	sigChld := make(chan os.Signal, 1)
	signal.Notify(sigChld, unix.SIGCHLD)
	defer signal.Reset(unix.SIGCHLD)

	for {
		select {
		case <-sigChld:
			select {
			case r.notify <- struct{}{}:
			default:
				// Already a pending notification; the next ReapAll
				// will drain whatever accumulated.
			}
		case <-r.tmb.Dying():
			return nil
		}
	}
}

// Disposition describes what ReapAll observed about one reaped pid.
type Disposition struct {
	PID      int
	ExitCode int
	Signaled bool
}

// ReapAll drains every exited child with a non-blocking "wait for any
// child" call, invoking dispose once per exited pid, until the kernel
// reports no more children are waiting (ECHILD) or none are currently
// ready (pid <= 0 with a nil error). It is always safe to call even
// when nothing is ready; it simply returns immediately.
//
// This must only be called from the single goroutine that owns the
// service table, since dispose is expected to mutate it.
func ReapAll(dispose func(Disposition)) {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		switch err {
		case nil:
			if pid <= 0 {
				return
			}
			d := Disposition{PID: pid}
			if status.Signaled() {
				d.Signaled = true
				d.ExitCode = 128 + int(status.Signal())
			} else {
				d.ExitCode = status.ExitStatus()
			}
			dispose(d)
		case unix.ECHILD:
			return
		default:
			logger.Noticef("Cannot wait for child process: %v", err)
			return
		}
	}
}
