// Package service holds the supervisor's authoritative in-memory model
// of configured services: their immutable configuration, their mutable
// runtime state, and the PID→name reverse index used for reaping.
//
// A Table is owned exclusively by the supervisor's single goroutine
// (see internal/supervisor) and is not safe for concurrent use.
package service

import (
	"fmt"
	"sort"
)

// Config is a service's immutable configuration, as loaded at startup.
type Config struct {
	Name        string
	Description string
	Cmdline     string
}

// Status is a service's coarse lifecycle state.
type Status int

const (
	Stopped Status = iota
	Running
	Errored
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// State is a service's mutable runtime record.
type State struct {
	Status Status
	PID    int // 0 unless Status == Running
	PGID   int // equal to PID by construction (see internal/launcher)

	// PendingRestart is set while a Restart is waiting for the reaper
	// to observe this service's exit before re-spawning it: restarts
	// are deferred rather than killing and immediately respawning, so
	// the old and new instances never overlap.
	PendingRestart bool
}

// Info is the externally visible projection of a service's state,
// produced only in response to status queries.
type Info struct {
	Name    string
	PID     int
	Running bool
}

// Table is the supervisor's service table: configs, runtime state, and
// the PID→name reverse index, kept mutually consistent (see
// CheckInvariants).
type Table struct {
	configs map[string]Config
	states  map[string]*State
	pids    map[int]string
}

// NewTable builds a Table from a set of service configs, all starting
// Stopped. Returns an error if any name is empty or duplicated.
func NewTable(configs []Config) (*Table, error) {
	t := &Table{
		configs: make(map[string]Config, len(configs)),
		states:  make(map[string]*State, len(configs)),
		pids:    make(map[int]string),
	}
	for _, c := range configs {
		if c.Name == "" {
			return nil, fmt.Errorf("service has empty name")
		}
		if _, dup := t.configs[c.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", c.Name)
		}
		t.configs[c.Name] = c
		t.states[c.Name] = &State{Status: Stopped}
	}
	return t, nil
}

// Names returns every configured service name, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.configs))
	for name := range t.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the service's immutable config.
func (t *Table) Config(name string) (Config, bool) {
	c, ok := t.configs[name]
	return c, ok
}

// State returns a copy of the service's current runtime state.
func (t *Table) State(name string) (State, bool) {
	s, ok := t.states[name]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// MarkRunning records a successful spawn: status becomes Running, pid
// and pgid are recorded, and the reverse index gains an entry. Clears
// any prior PendingRestart flag, since the restart has now happened.
func (t *Table) MarkRunning(name string, pid int) {
	s := t.states[name]
	s.Status = Running
	s.PID = pid
	s.PGID = pid
	s.PendingRestart = false
	t.pids[pid] = name
}

// MarkErrored records a failed spawn attempt: status becomes Errored,
// no pid is recorded. Behaves like Stopped for future commands.
func (t *Table) MarkErrored(name string) {
	s := t.states[name]
	s.Status = Errored
	s.PID = 0
	s.PGID = 0
}

// MarkStopped records that the reaper observed this service's primary
// child exit: status becomes Stopped, pid is cleared, and the reverse
// index entry is removed. This is the only way a service leaves
// Running due to a process exit (see internal/reaper).
func (t *Table) MarkStopped(name string) {
	s := t.states[name]
	if s.PID != 0 {
		delete(t.pids, s.PID)
	}
	s.Status = Stopped
	s.PID = 0
	s.PGID = 0
}

// SetPendingRestart marks name as having a restart queued behind its
// current exit. A no-op if the service isn't tracked.
func (t *Table) SetPendingRestart(name string) {
	if s, ok := t.states[name]; ok {
		s.PendingRestart = true
	}
}

// TakePendingRestart reports and clears whether name had a restart
// queued.
func (t *Table) TakePendingRestart(name string) bool {
	s, ok := t.states[name]
	if !ok || !s.PendingRestart {
		return false
	}
	s.PendingRestart = false
	return true
}

// LookupPID returns the service name owning pid, if any, per the
// reverse index.
func (t *Table) LookupPID(pid int) (string, bool) {
	name, ok := t.pids[pid]
	return name, ok
}

// RunningPIDs returns a snapshot of every (pid, name) currently in the
// reverse index, used by the shutdown coordinator to broadcast signals.
func (t *Table) RunningPIDs() map[int]string {
	out := make(map[int]string, len(t.pids))
	for pid, name := range t.pids {
		out[pid] = name
	}
	return out
}

// Snapshot returns a ServiceInfo list for every configured service,
// sorted by name. Never mutates the table.
func (t *Table) Snapshot() []Info {
	names := t.Names()
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		s := t.states[name]
		info := Info{Name: name, Running: s.Status == Running}
		if s.Status == Running {
			info.PID = s.PID
		}
		infos = append(infos, info)
	}
	return infos
}

// CheckInvariants validates that configs, states, and the pid reverse
// index all agree with each other. Exercised by tests; not called on
// any hot path.
func (t *Table) CheckInvariants() error {
	if len(t.configs) != len(t.states) {
		return fmt.Errorf("config/state map size mismatch: %d vs %d", len(t.configs), len(t.states))
	}
	for name := range t.states {
		if _, ok := t.configs[name]; !ok {
			return fmt.Errorf("state for %q has no matching config", name)
		}
	}
	for name := range t.configs {
		if _, ok := t.states[name]; !ok {
			return fmt.Errorf("config for %q has no matching state", name)
		}
	}
	seen := make(map[int]string, len(t.pids))
	for pid, name := range t.pids {
		if other, dup := seen[pid]; dup {
			return fmt.Errorf("pid %d maps to both %q and %q", pid, other, name)
		}
		seen[pid] = name

		s, ok := t.states[name]
		if !ok {
			return fmt.Errorf("pid %d maps to unknown service %q", pid, name)
		}
		if s.Status != Running {
			return fmt.Errorf("pid %d maps to %q which is %s, not running", pid, name, s.Status)
		}
		if s.PID != pid {
			return fmt.Errorf("pid %d maps to %q but its state pid is %d", pid, name, s.PID)
		}
	}
	runningCount := 0
	for name, s := range t.states {
		if s.Status == Running {
			runningCount++
			if s.PID == 0 {
				return fmt.Errorf("%q is running with no pid", name)
			}
			if owner, ok := t.pids[s.PID]; !ok || owner != name {
				return fmt.Errorf("%q is running with pid %d but reverse index disagrees", name, s.PID)
			}
		} else {
			if s.PID != 0 {
				return fmt.Errorf("%q is %s but has a non-zero pid %d", name, s.Status, s.PID)
			}
		}
	}
	if runningCount != len(t.pids) {
		return fmt.Errorf("running count %d != reverse index size %d", runningCount, len(t.pids))
	}
	return nil
}
