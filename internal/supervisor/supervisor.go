// Package supervisor is the event loop that owns the service table: the
// only goroutine allowed to read or mutate it. It multiplexes child-exit
// notifications, termination signals, and control commands, and drives
// the shutdown/reboot/re-exec sequence when asked to.
package supervisor

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"sima/internal/launcher"
	"sima/internal/logger"
	"sima/internal/metrics"
	"sima/internal/platform"
	"sima/internal/reaper"
	"sima/internal/service"
	"sima/internal/wire"
)

// CommandKind identifies what an InternalCommand asks the supervisor to
// do; it mirrors wire.RequestKind one-to-one.
type CommandKind int

const (
	CmdStart CommandKind = iota + 1
	CmdStop
	CmdRestart
	CmdStatus
	CmdPoweroff
	CmdReboot
	CmdSoftReboot
)

// InternalCommand is what the control server hands to the supervisor
// through its command queue. Status carries a one-shot reply channel so
// the serving goroutine can deliver the snapshot back to its client;
// every other kind is fire-and-forget.
type InternalCommand struct {
	Kind  CommandKind
	Name  string
	Reply chan<- []wire.ServiceInfo
}

// queueCapacity bounds how many commands may be enqueued before the
// control server starts rejecting new ones with "internal error".
const queueCapacity = 32

// shutdownTimeout is T_shutdown: the bounded wall-clock budget the
// coordinator gives running services to stop gracefully before
// escalating to SIGKILL.
const shutdownTimeout = 10 * time.Second

// Launcher abstracts process spawning and group-signaling, the same
// way platform.Platform abstracts reboot/poweroff: it lets tests drive
// the supervisor's spawn-failure and signal-delivery paths without
// exec'ing or killing real processes.
type Launcher interface {
	Spawn(cmdline string) (pid int, err error)
	SignalGroup(pid int, sig syscall.Signal) error
}

// realLauncher is the production Launcher, delegating to
// internal/launcher's package-level functions.
type realLauncher struct{}

func (realLauncher) Spawn(cmdline string) (int, error) { return launcher.Spawn(cmdline) }

func (realLauncher) SignalGroup(pid int, sig syscall.Signal) error {
	return launcher.SignalGroup(pid, sig)
}

// Supervisor is the single-goroutine owner of a service.Table.
type Supervisor struct {
	table    *service.Table
	reaper   *reaper.Reaper
	platform platform.Platform
	launcher Launcher
	commands chan InternalCommand

	execArgs []string          // argv for SoftReboot's re-exec
	metrics  *metrics.Registry // optional; nil unless the metrics surface is enabled
}

// New builds a Supervisor over table, using r for child-exit
// notifications and p for reboot/poweroff/re-exec primitives. execArgs
// is the argv SoftReboot will exec in place of the running image
// (typically os.Args).
func New(table *service.Table, r *reaper.Reaper, p platform.Platform, execArgs []string) *Supervisor {
	return &Supervisor{
		table:    table,
		reaper:   r,
		platform: p,
		launcher: realLauncher{},
		commands: make(chan InternalCommand, queueCapacity),
		execArgs: execArgs,
	}
}

// SetMetrics enables publishing a service snapshot and spawn/restart
// counters to m after every table mutation. Optional; if never called,
// the supervisor does no metrics work at all.
func (s *Supervisor) SetMetrics(m *metrics.Registry) {
	s.metrics = m
}

// SetLauncher overrides how services are spawned and signaled.
// Optional; defaults to the real OS-backed Launcher. Exists so tests
// can exercise spawn-failure and signal-delivery paths deterministically.
func (s *Supervisor) SetLauncher(l Launcher) {
	s.launcher = l
}

func (s *Supervisor) publishMetrics() {
	if s.metrics != nil {
		s.metrics.Publish(s.table.Snapshot())
	}
}

// Commands returns the channel the control server enqueues
// InternalCommands onto. Enqueuing must use a non-blocking send
// (select with a default case) so a full queue can be reported to the
// client as "internal error" rather than blocking the acceptor.
func (s *Supervisor) Commands() chan<- InternalCommand {
	return s.commands
}

// SpawnConfigured spawns every configured service, best-effort: a spawn
// failure marks that service Errored and does not stop the others.
func (s *Supervisor) SpawnConfigured() {
	for _, name := range s.table.Names() {
		s.startService(name)
	}
	s.publishMetrics()
}

// Run is the event loop. It blocks until a termination signal arrives
// or a Poweroff/Reboot/SoftReboot command is processed, at which point
// it runs the shutdown coordinator and returns. For SoftReboot, a
// successful re-exec replaces the process image and never returns,
// and a failed one panics (see shutdown).
func (s *Supervisor) Run() error {
	sigTerm := make(chan os.Signal, 1)
	signal.Notify(sigTerm, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigTerm)

	for {
		select {
		case <-s.reaper.Notify():
			s.drainExits()
			s.publishMetrics()

		case sig := <-sigTerm:
			logger.Noticef("Received %s, shutting down.", sig)
			s.shutdown(shutdownReasonTerminate)
			return nil

		case cmd := <-s.commands:
			done := s.handleCommand(cmd)
			s.publishMetrics()
			if done {
				return nil
			}
		}
	}
}

// drainExits reaps every currently-exited child and applies each
// disposition to the service table. Must run to exhaustion because the
// notification is edge-triggered: one wakeup can stand for many exits.
func (s *Supervisor) drainExits() {
	reaper.ReapAll(func(d reaper.Disposition) {
		name, ok := s.table.LookupPID(d.PID)
		if !ok {
			logger.Debugf("Reaped orphan pid %d (exit code %d).", d.PID, d.ExitCode)
			return
		}
		if d.Signaled {
			logger.Noticef("Service %q (pid %d) terminated by signal (code %d).", name, d.PID, d.ExitCode)
		} else {
			logger.Noticef("Service %q (pid %d) exited with code %d.", name, d.PID, d.ExitCode)
		}
		s.table.MarkStopped(name)
		if s.table.TakePendingRestart(name) {
			if s.metrics != nil {
				s.metrics.IncRestarts()
			}
			s.startService(name)
		}
	})
}

// handleCommand applies one InternalCommand. It returns true if the
// command initiated shutdown and the event loop should stop.
func (s *Supervisor) handleCommand(cmd InternalCommand) bool {
	switch cmd.Kind {
	case CmdStart:
		s.startService(cmd.Name)
	case CmdStop:
		s.stopService(cmd.Name)
	case CmdRestart:
		// Deferred restart: the respawn happens once drainExits
		// observes the service actually stop, not immediately. If
		// the service isn't running, there's nothing to defer.
		st, ok := s.table.State(cmd.Name)
		if ok && st.Status == service.Running {
			s.table.SetPendingRestart(cmd.Name)
			s.stopService(cmd.Name)
		} else {
			s.startService(cmd.Name)
		}
	case CmdStatus:
		if cmd.Reply != nil {
			cmd.Reply <- s.snapshotToWire()
		}
	case CmdPoweroff:
		s.shutdown(shutdownReasonPoweroff)
		return true
	case CmdReboot:
		s.shutdown(shutdownReasonReboot)
		return true
	case CmdSoftReboot:
		s.shutdown(shutdownReasonSoftReboot)
		return true
	default:
		logger.Noticef("Ignoring internal command with unknown kind %v.", cmd.Kind)
	}
	return false
}

func (s *Supervisor) startService(name string) {
	st, ok := s.table.State(name)
	if !ok {
		logger.Noticef("Cannot start unknown service %q.", name)
		return
	}
	if st.Status == service.Running {
		return // redundant Start is a no-op
	}
	cfg, _ := s.table.Config(name)
	pid, err := s.launcher.Spawn(cfg.Cmdline)
	if s.metrics != nil {
		s.metrics.IncSpawns()
	}
	if err != nil {
		logger.Noticef("Cannot start service %q: %v.", name, err)
		s.table.MarkErrored(name)
		return
	}
	logger.Noticef("Started service %q (pid %d).", name, pid)
	s.table.MarkRunning(name, pid)
}

func (s *Supervisor) stopService(name string) {
	st, ok := s.table.State(name)
	if !ok || st.Status != service.Running {
		return // Stop while not running is a no-op
	}
	if err := s.launcher.SignalGroup(st.PID, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		logger.Noticef("Cannot signal service %q (pid %d): %v.", name, st.PID, err)
	}
	// State transitions to Stopped only once the reaper confirms it.
}

func (s *Supervisor) snapshotToWire() []wire.ServiceInfo {
	infos := s.table.Snapshot()
	out := make([]wire.ServiceInfo, len(infos))
	for i, info := range infos {
		out[i] = wire.ServiceInfo{Name: info.Name, PID: int32(info.PID), Running: info.Running}
	}
	return out
}

type shutdownReason int

const (
	shutdownReasonTerminate shutdownReason = iota
	shutdownReasonPoweroff
	shutdownReasonReboot
	shutdownReasonSoftReboot
)

// shutdown runs the bounded shutdown protocol and then performs the
// post-shutdown action for reason. No command is read off s.commands
// between the start of this call and the post-shutdown action: the
// event loop has already returned control here and will not select on
// the queue again.
func (s *Supervisor) shutdown(reason shutdownReason) {
	s.broadcastGracefulStop()
	s.waitForEmpty(shutdownTimeout)
	s.escalateIfNeeded()

	switch reason {
	case shutdownReasonTerminate, shutdownReasonPoweroff:
		s.platform.Sync()
		if err := s.platform.Poweroff(); err != nil {
			logger.Noticef("Poweroff failed: %v.", err)
		}
	case shutdownReasonReboot:
		s.platform.Sync()
		if err := s.platform.Reboot(); err != nil {
			logger.Noticef("Reboot failed: %v.", err)
		}
	case shutdownReasonSoftReboot:
		s.platform.Sync()
		if err := s.platform.SoftReboot(s.execArgs); err != nil {
			// Per the shutdown contract, a failed re-exec is a fatal
			// internal error: pid 1 cannot limp along without its
			// own image, so it aborts and lets the kernel panic.
			logger.Panicf("Soft reboot failed: %v.", err)
		}
	}
}

func (s *Supervisor) broadcastGracefulStop() {
	for pid, name := range s.table.RunningPIDs() {
		if err := s.launcher.SignalGroup(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
			logger.Noticef("Cannot signal service %q (pid %d) during shutdown: %v.", name, pid, err)
		}
	}
}

// waitForEmpty drains exits as they arrive until the reverse index is
// empty or timeout elapses.
func (s *Supervisor) waitForEmpty(timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for len(s.table.RunningPIDs()) > 0 {
		select {
		case <-s.reaper.Notify():
			s.drainExitsDuringShutdown()
		case <-deadline.C:
			logger.Noticef("Shutdown timeout elapsed with services still running.")
			return
		}
	}
}

// drainExitsDuringShutdown is like drainExits but never triggers a
// deferred restart: once shutdown has begun, nothing respawns.
func (s *Supervisor) drainExitsDuringShutdown() {
	reaper.ReapAll(func(d reaper.Disposition) {
		name, ok := s.table.LookupPID(d.PID)
		if !ok {
			return
		}
		s.table.MarkStopped(name)
		s.table.TakePendingRestart(name) // clear, but do not act on it
	})
}

func (s *Supervisor) escalateIfNeeded() {
	remaining := s.table.RunningPIDs()
	if len(remaining) == 0 {
		return
	}
	logger.Noticef("Escalating to SIGKILL for %d remaining service(s).", len(remaining))
	for pid, name := range remaining {
		if err := s.launcher.SignalGroup(pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			logger.Noticef("Cannot SIGKILL service %q (pid %d): %v.", name, pid, err)
		}
	}
	reaper.ReapAll(func(d reaper.Disposition) {
		if name, ok := s.table.LookupPID(d.PID); ok {
			s.table.MarkStopped(name)
		}
	})
}
