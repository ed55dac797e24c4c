// Package process defines the backend contract for starting the
// processes of a launch.
//
// A backend only starts, observes and signals processes. It never orders
// starts, waits for readiness, or restarts anything.
package process

import (
	"context"
	"errors"
	"syscall"
	"time"
)

var (
	ErrNotFound      = errors.New("process not found")
	ErrAlreadyExists = errors.New("process already exists")
	ErrEmptyCommand  = errors.New("empty command")
	ErrNotRunning    = errors.New("process not running")
)

// ProcessRef identifies one process of a launch.
type ProcessRef struct {
	LaunchID string
	Name     string
}

func (r ProcessRef) String() string {
	return r.LaunchID + "/" + r.Name
}

// ProcessState is a simplified view of a process state.
type ProcessState string

const (
	ProcessStateRunning  ProcessState = "running"
	ProcessStateStarting ProcessState = "starting"
	ProcessStateExited   ProcessState = "exited"
	ProcessStateFailed   ProcessState = "failed"
)

// Done reports whether the state is terminal.
func (s ProcessState) Done() bool {
	return s == ProcessStateExited || s == ProcessStateFailed
}

// ProcessStatus describes a process.
type ProcessStatus struct {
	Ref         ProcessRef
	State       ProcessState
	Description string
	Started     time.Time
	PID         uint32
	WorkingDir  string
	ExitStatus  int32
}

// OutputMode selects where stdout and stderr go.
type OutputMode string

const (
	// OutputScreen sends output to the invoking terminal.
	OutputScreen OutputMode = "screen"
	// OutputLog sends output to a per-process log (file or journal).
	OutputLog OutputMode = "log"
)

// ProcessSpec defines how to start a process.
type ProcessSpec struct {
	Ref         ProcessRef
	Command     []string
	Description string
	WorkingDir  string
	// Environment replaces the inherited environment when non-nil.
	Environment map[string]string
	Output      OutputMode
	// LogDir receives <name>.log for OutputLog on backends that write files.
	LogDir string
	// Collect unloads the record of the process once it has exited.
	Collect bool
}

// ProcessFilter narrows down backend queries.
type ProcessFilter struct {
	LaunchID string
	States   []ProcessState
}

// Matches reports whether st passes the filter.
func (f ProcessFilter) Matches(st ProcessStatus) bool {
	if f.LaunchID != "" && st.Ref.LaunchID != f.LaunchID {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if s == st.State {
			return true
		}
	}
	return false
}

// ProcessExit describes an observed process exit.
type ProcessExit struct {
	Ref      ProcessRef
	ExitCode int
	Result   string
}

// ProcessBackend starts and tracks processes. Concrete backends can be
// plain OS processes, systemd units, or a fake.
type ProcessBackend interface {
	List(ctx context.Context, filter ProcessFilter) ([]ProcessStatus, error)
	Describe(ctx context.Context, ref ProcessRef) (*ProcessStatus, error)

	Start(ctx context.Context, spec ProcessSpec) error
	Stop(ctx context.Context, ref ProcessRef) error
	Kill(ctx context.Context, ref ProcessRef, signal syscall.Signal) error

	// Wait blocks until the process exits or ctx is done.
	Wait(ctx context.Context, ref ProcessRef) (ProcessExit, error)

	Close() error
}
