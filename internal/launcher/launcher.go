// Package launcher starts a batch of launch processes on a backend and
// hands back a Handle for observing and stopping them.
//
// All processes are started at once. Nothing waits for readiness, orders
// starts, or retries a failed start.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ptrmu/fiducial-vlam-fg/internal/ament"
	"github.com/ptrmu/fiducial-vlam-fg/internal/dirs"
	"github.com/ptrmu/fiducial-vlam-fg/internal/params"
	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
	"github.com/ptrmu/fiducial-vlam-fg/internal/vlam"
)

// ErrNoProcesses is returned when Launch is given nothing to start.
var ErrNoProcesses = errors.New("no processes to launch")

// Launcher turns vlam process specs into backend processes.
type Launcher struct {
	Backend process.ProcessBackend
	Locator ament.Locator
	// RuntimeDir holds one subdirectory per launch with parameter files
	// and logs. Defaults to dirs.RuntimeDir().
	RuntimeDir string
	Logger     *slog.Logger
	// Environment is added on top of the inherited environment.
	Environment map[string]string
	// Output overrides the output mode of every process when set.
	Output process.OutputMode
	// Collect has the backend forget processes once they exit.
	Collect bool

	newID func() string
}

// NewLaunchID returns a fresh 8-character launch ID.
func NewLaunchID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// planned is a process ready to hand to the backend. name labels it in
// logs even when planning failed before a spec existed.
type planned struct {
	name string
	spec process.ProcessSpec
	err  error
}

// Launch starts every spec concurrently. Failed starts are joined into
// the returned error; the Handle still covers the processes that did
// start and is nil only when none did.
func (l *Launcher) Launch(ctx context.Context, specs []vlam.ProcessSpec) (*Handle, error) {
	if len(specs) == 0 {
		return nil, ErrNoProcesses
	}

	id := l.launchID()
	dir := dirs.LaunchDir(l.runtimeDir(), id)
	logger := l.logger().With("launch", id)

	plan := make([]planned, len(specs))
	for i, s := range specs {
		plan[i] = l.plan(id, dir, i, s)
	}

	logger.Info("launching", "processes", len(plan), "dir", dir)

	errs := make([]error, len(plan))
	var g errgroup.Group
	for i, p := range plan {
		if p.err != nil {
			errs[i] = p.err
			continue
		}
		g.Go(func() error {
			if err := l.Backend.Start(ctx, p.spec); err != nil {
				errs[i] = fmt.Errorf("starting %s: %w", p.spec.Ref.Name, err)
				return nil
			}
			logger.Debug("started", "process", p.spec.Ref.Name, "cmd", p.spec.Command)
			return nil
		})
	}
	_ = g.Wait()

	h := &Handle{id: id, dir: dir, backend: l.Backend, logger: logger}
	for i, p := range plan {
		if errs[i] != nil {
			logger.Error("start failed", "process", p.name, "error", errs[i])
			continue
		}
		h.refs = append(h.refs, p.spec.Ref)
	}

	err := errors.Join(errs...)
	if len(h.refs) == 0 {
		return nil, err
	}
	return h, err
}

// plan resolves one spec into a backend spec. The process is named
// <executable>-<n>, n counting from 1 in spec order.
func (l *Launcher) plan(id, dir string, i int, s vlam.ProcessSpec) planned {
	base := s.BaseName()
	if base == "" {
		name := fmt.Sprintf("process %d", i+1)
		return planned{name: name, err: fmt.Errorf("%s: %w", name, process.ErrEmptyCommand)}
	}
	name := fmt.Sprintf("%s-%d", base, i+1)

	spec := process.ProcessSpec{
		Ref:         process.ProcessRef{LaunchID: id, Name: name},
		Environment: l.environment(),
		Output:      l.outputMode(s.Output),
		LogDir:      dir,
		Collect:     l.Collect,
	}

	if !s.IsNode() {
		spec.Command = append([]string(nil), s.Command...)
		spec.Description = strings.Join(s.Command, " ")
		return planned{name: name, spec: spec}
	}

	spec.Description = s.Package + "/" + s.Executable
	exe, err := l.Locator.Executable(s.Package, s.Executable)
	if err != nil {
		return planned{name: name, spec: spec, err: fmt.Errorf("%s: %w", name, err)}
	}
	spec.Command = []string{exe, "--ros-args"}

	if s.Parameters != nil {
		path, err := params.WriteFile(dir, name, *s.Parameters)
		if err != nil {
			return planned{name: name, spec: spec, err: fmt.Errorf("%s: %w", name, err)}
		}
		spec.Command = append(spec.Command, "--params-file", path)
	}
	return planned{name: name, spec: spec}
}

func (l *Launcher) launchID() string {
	if l.newID != nil {
		return l.newID()
	}
	return NewLaunchID()
}

func (l *Launcher) runtimeDir() string {
	if l.RuntimeDir != "" {
		return l.RuntimeDir
	}
	return dirs.RuntimeDir()
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Launcher) outputMode(o vlam.Output) process.OutputMode {
	if l.Output != "" {
		return l.Output
	}
	if o == vlam.OutputLog {
		return process.OutputLog
	}
	return process.OutputScreen
}

// environment returns nil to inherit, or the inherited environment with
// Environment applied on top.
func (l *Launcher) environment() map[string]string {
	if len(l.Environment) == 0 {
		return nil
	}
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	maps.Copy(env, l.Environment)
	return env
}

// Handle tracks the processes of one launch.
type Handle struct {
	id      string
	dir     string
	backend process.ProcessBackend
	refs    []process.ProcessRef
	logger  *slog.Logger

	stopOnce sync.Once
	stopErr  error
}

func (h *Handle) ID() string { return h.id }

// Dir is the launch's directory for parameter files and logs.
func (h *Handle) Dir() string { return h.dir }

// Processes returns the started processes in launch order.
func (h *Handle) Processes() []process.ProcessRef {
	return append([]process.ProcessRef(nil), h.refs...)
}

// Status returns the state of each process in launch order. Processes
// the backend no longer knows are left out.
func (h *Handle) Status(ctx context.Context) ([]process.ProcessStatus, error) {
	list, err := h.backend.List(ctx, process.ProcessFilter{LaunchID: h.id})
	if err != nil {
		return nil, fmt.Errorf("listing launch %s: %w", h.id, err)
	}
	byName := make(map[string]process.ProcessStatus, len(list))
	for _, st := range list {
		byName[st.Ref.Name] = st
	}
	out := make([]process.ProcessStatus, 0, len(h.refs))
	for _, ref := range h.refs {
		if st, ok := byName[ref.Name]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

// Wait blocks until every process has exited. One process exiting does
// not affect the others. Exits are returned in launch order; the error
// is the first one a backend Wait returned.
func (h *Handle) Wait(ctx context.Context) ([]process.ProcessExit, error) {
	exits := make([]process.ProcessExit, len(h.refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range h.refs {
		g.Go(func() error {
			exit, err := h.backend.Wait(gctx, ref)
			if err != nil {
				return fmt.Errorf("waiting for %s: %w", ref.Name, err)
			}
			exits[i] = exit
			h.logger.Info("process exited", "process", ref.Name, "code", exit.ExitCode, "result", exit.Result)
			return nil
		})
	}
	err := g.Wait()
	return exits, err
}

// Stop asks every process to stop, concurrently. Processes that already
// exited are not an error. Later calls return the first call's result.
func (h *Handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		errs := make([]error, len(h.refs))
		var g errgroup.Group
		for i, ref := range h.refs {
			g.Go(func() error {
				err := h.backend.Stop(ctx, ref)
				if err != nil && !errors.Is(err, process.ErrNotFound) && !errors.Is(err, process.ErrNotRunning) {
					errs[i] = fmt.Errorf("stopping %s: %w", ref.Name, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		h.stopErr = errors.Join(errs...)
		h.logger.Info("stopped", "processes", len(h.refs), "error", h.stopErr)
	})
	return h.stopErr
}
