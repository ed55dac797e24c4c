// Package systemd runs launch processes as transient systemd user units.
//
// Every process of a launch becomes vlam-<launch>-<name>.service inside
// vlam-<launch>.slice. Units outlive the command that started them, so a
// later invocation can list or stop a launch by its ID.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

// DefaultPollInterval is how often Wait checks unit state.
const DefaultPollInterval = 250 * time.Millisecond

// SystemdBackend adapts the low-level Systemd interface to the semantic ProcessBackend.
type SystemdBackend struct {
	systemd      Systemd
	pollInterval time.Duration
	environ      func() []string
}

var _ process.ProcessBackend = (*SystemdBackend)(nil)

// NewSystemdBackend wraps a Systemd connection in a ProcessBackend.
func NewSystemdBackend(sd Systemd) *SystemdBackend {
	return &SystemdBackend{
		systemd:      sd,
		pollInterval: DefaultPollInterval,
		environ:      os.Environ,
	}
}

// Start launches a process by translating a ProcessSpec into a transient unit.
func (b *SystemdBackend) Start(ctx context.Context, spec process.ProcessSpec) error {
	if len(spec.Command) == 0 {
		return process.ErrEmptyCommand
	}

	tSpec := TransientSpec{
		Unit:             ProcessUnit(spec.Ref),
		Slice:            LaunchSlice(spec.Ref.LaunchID),
		ServiceType:      "exec",
		WorkingDir:       spec.WorkingDir,
		Description:      spec.Description,
		Environment:      spec.Environment,
		Collect:          spec.Collect,
		SyslogIdentifier: spec.Ref.Name,
	}

	// User units start from the manager's environment, not the caller's
	// shell, which would lose the ROS setup.
	if tSpec.Environment == nil {
		tSpec.Environment = parseEnviron(b.environ())
	}

	// The manager searches its own PATH, not ours, so a bare command
	// name is resolved here the way systemd-run does.
	exe, err := lookPath(spec.Command[0], tSpec.Environment["PATH"])
	if err != nil {
		return fmt.Errorf("%s: %w", spec.Ref.Name, err)
	}
	tSpec.Command = append([]string{exe}, spec.Command[1:]...)

	switch spec.Output {
	case process.OutputScreen, "":
		stdout, stderr := int(os.Stdout.Fd()), int(os.Stderr.Fd())
		tSpec.Stdout = &stdout
		tSpec.Stderr = &stderr
	case process.OutputLog:
		// Journal is the default when no descriptors are given.
	default:
		return fmt.Errorf("%s: unknown output mode %q", spec.Ref.Name, spec.Output)
	}

	// A failed unit from an earlier launch with the same ID would block
	// the name.
	_ = b.systemd.ResetFailedUnit(ctx, tSpec.Unit)

	return b.systemd.StartTransient(ctx, tSpec)
}

// Stop stops a process.
func (b *SystemdBackend) Stop(ctx context.Context, ref process.ProcessRef) error {
	return b.systemd.StopUnit(ctx, ProcessUnit(ref))
}

// Kill sends a signal to a process.
func (b *SystemdBackend) Kill(ctx context.Context, ref process.ProcessRef, signal syscall.Signal) error {
	return b.systemd.KillUnit(ctx, ProcessUnit(ref), signal)
}

// List lists processes matching the filter.
func (b *SystemdBackend) List(ctx context.Context, filter process.ProcessFilter) ([]process.ProcessStatus, error) {
	patterns := []UnitName{LaunchPattern(filter.LaunchID)}
	states := statesForFilter(filter.States)

	units, err := b.systemd.ListUnits(ctx, patterns, states)
	if err != nil {
		return nil, err
	}

	var result []process.ProcessStatus
	for _, u := range units {
		ref, ok := u.Name.Ref()
		if !ok {
			continue
		}
		// Only units in the launch's own slice are ours.
		if u.Slice != "" && u.Slice != LaunchSlice(ref.LaunchID) {
			continue
		}
		st := statusFromUnit(ref, u)
		if filter.Matches(st) {
			result = append(result, st)
		}
	}

	return result, nil
}

// Describe returns a single process status.
func (b *SystemdBackend) Describe(ctx context.Context, ref process.ProcessRef) (*process.ProcessStatus, error) {
	u, err := b.systemd.GetUnit(ctx, ProcessUnit(ref))
	if err != nil {
		return nil, err
	}
	st := statusFromUnit(ref, *u)
	return &st, nil
}

// Wait polls the unit until it leaves the active states.
func (b *SystemdBackend) Wait(ctx context.Context, ref process.ProcessRef) (process.ProcessExit, error) {
	name := ProcessUnit(ref)
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		u, err := b.systemd.GetUnit(ctx, name)
		if err != nil {
			return process.ProcessExit{}, err
		}
		if u.State == UnitStateInactive || u.State == UnitStateFailed {
			return process.ProcessExit{
				Ref:      ref,
				ExitCode: int(u.ExitStatus),
				Result:   u.Result,
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return process.ProcessExit{}, ctx.Err()
		}
	}
}

// Close releases the underlying Systemd connection. Units keep running.
func (b *SystemdBackend) Close() error {
	if b.systemd == nil {
		return nil
	}
	return b.systemd.Close()
}

func statusFromUnit(ref process.ProcessRef, u Unit) process.ProcessStatus {
	return process.ProcessStatus{
		Ref:         ref,
		State:       processStateFromUnit(u.State, u.ExitStatus),
		Description: u.Description,
		Started:     u.Started,
		PID:         u.MainPID,
		WorkingDir:  u.WorkingDir,
		ExitStatus:  u.ExitStatus,
	}
}

func statesForFilter(states []process.ProcessState) []UnitState {
	if len(states) == 0 {
		return nil
	}

	var out []UnitState
	for _, st := range states {
		switch st {
		case process.ProcessStateRunning:
			out = append(out, UnitStateActive, UnitStateDeactivating)
		case process.ProcessStateStarting:
			out = append(out, UnitStateActivating)
		case process.ProcessStateExited:
			out = append(out, UnitStateInactive)
		case process.ProcessStateFailed:
			out = append(out, UnitStateFailed, UnitStateInactive)
		}
	}
	return out
}

func processStateFromUnit(state UnitState, exitStatus int32) process.ProcessState {
	switch state {
	case UnitStateActive, UnitStateDeactivating:
		return process.ProcessStateRunning
	case UnitStateActivating:
		return process.ProcessStateStarting
	case UnitStateFailed:
		return process.ProcessStateFailed
	default:
		if exitStatus == 0 {
			return process.ProcessStateExited
		}
		return process.ProcessStateFailed
	}
}

// lookPath resolves name against the colon-separated path list. Names
// containing a slash are only made absolute.
func lookPath(name, path string) (string, error) {
	if strings.Contains(name, "/") {
		return filepath.Abs(name)
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
			return filepath.Abs(candidate)
		}
	}
	return "", &osexec.Error{Name: name, Err: osexec.ErrNotFound}
}

func parseEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// IsUnavailable reports whether err means no user systemd is reachable.
func IsUnavailable(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && (errno == syscall.ENOENT || errno == syscall.ECONNREFUSED)
}
