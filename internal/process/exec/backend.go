package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

// Backend is a portable ProcessBackend implementation backed by plain OS processes.
type Backend struct {
	mu    sync.Mutex
	procs map[process.ProcessRef]*procState

	stdout   io.Writer
	stderr   io.Writer
	screenMu sync.Mutex
	color    bool
}

type procState struct {
	ref process.ProcessRef

	cmd  *osexec.Cmd
	proc *os.Process

	description string
	workingDir  string
	started     time.Time

	// closers run after the process exits, flushing prefixed output and
	// closing log files.
	closers []io.Closer

	done      chan struct{}
	exitCode  int
	exitErr   error
	result    string
	exitState process.ProcessState
}

var _ process.ProcessBackend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithScreen sets the destinations for OutputScreen processes.
func WithScreen(stdout, stderr io.Writer) Option {
	return func(b *Backend) {
		b.stdout = stdout
		b.stderr = stderr
	}
}

// WithColor colors the per-process line prefixes.
func WithColor(color bool) Option {
	return func(b *Backend) {
		b.color = color
	}
}

func New(opts ...Option) *Backend {
	b := &Backend{
		procs:  make(map[process.ProcessRef]*procState),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Close() error {
	// Best-effort kill all running processes.
	b.mu.Lock()
	procs := make([]*procState, 0, len(b.procs))
	for _, p := range b.procs {
		procs = append(procs, p)
	}
	b.mu.Unlock()

	for _, p := range procs {
		select {
		case <-p.done:
		default:
			_ = b.Kill(context.Background(), p.ref, syscall.SIGKILL)
		}
	}
	return nil
}

func (b *Backend) List(ctx context.Context, filter process.ProcessFilter) ([]process.ProcessStatus, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	var statuses []process.ProcessStatus
	for _, p := range b.procs {
		st := p.status()
		if filter.Matches(st) {
			statuses = append(statuses, st)
		}
	}

	// Stable order for callers/tests.
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Ref.LaunchID == statuses[j].Ref.LaunchID {
			return statuses[i].Ref.Name < statuses[j].Ref.Name
		}
		return statuses[i].Ref.LaunchID < statuses[j].Ref.LaunchID
	})

	return statuses, nil
}

func (b *Backend) Describe(ctx context.Context, ref process.ProcessRef) (*process.ProcessStatus, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, process.ErrNotFound)
	}
	st := p.status()
	return &st, nil
}

// status must be called with b.mu held.
func (p *procState) status() process.ProcessStatus {
	return process.ProcessStatus{
		Ref:         p.ref,
		State:       p.exitState,
		Description: p.description,
		Started:     p.started,
		PID:         uint32(pidOf(p.proc)),
		WorkingDir:  p.workingDir,
		ExitStatus:  int32(p.exitCode),
	}
}

func (b *Backend) Start(ctx context.Context, spec process.ProcessSpec) error {
	if len(spec.Command) == 0 {
		return process.ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if _, exists := b.procs[spec.Ref]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", spec.Ref, process.ErrAlreadyExists)
	}
	b.mu.Unlock()

	// The process must outlive ctx, so it is not bound to it.
	cmd := osexec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = envList(spec.Environment)

	closers, err := b.wireOutput(cmd, spec)
	if err != nil {
		return err
	}

	// Give each process its own process group so we can signal it reliably.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &procState{
		ref:         spec.Ref,
		cmd:         cmd,
		description: spec.Description,
		workingDir:  spec.WorkingDir,
		started:     time.Now(),
		closers:     closers,
		done:        make(chan struct{}),
		exitState:   process.ProcessStateStarting,
	}

	b.mu.Lock()
	b.procs[spec.Ref] = p
	b.mu.Unlock()

	if err := cmd.Start(); err != nil {
		b.mu.Lock()
		delete(b.procs, spec.Ref)
		b.mu.Unlock()
		closeAll(closers)
		close(p.done)
		return fmt.Errorf("starting %s: %w", spec.Ref.Name, err)
	}

	b.mu.Lock()
	p.proc = cmd.Process
	p.exitState = process.ProcessStateRunning
	b.mu.Unlock()

	go b.waitForExit(p, spec.Collect)
	return nil
}

// wireOutput connects stdout and stderr according to the output mode.
func (b *Backend) wireOutput(cmd *osexec.Cmd, spec process.ProcessSpec) ([]io.Closer, error) {
	var closers []io.Closer

	switch spec.Output {
	case process.OutputLog:
		if spec.LogDir == "" {
			return nil, fmt.Errorf("%s: log output needs a log directory", spec.Ref.Name)
		}
		if err := os.MkdirAll(spec.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(spec.LogDir, spec.Ref.Name+".log"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cmd.Stdout = f
		cmd.Stderr = f
		closers = append(closers, f)
	case process.OutputScreen, "":
		stdout := NewPrefixWriter(b.stdout, &b.screenMu, spec.Ref.Name, b.color)
		stderr := NewPrefixWriter(b.stderr, &b.screenMu, spec.Ref.Name, b.color)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		closers = append(closers, stdout, stderr)
	default:
		return nil, fmt.Errorf("%s: unknown output mode %q", spec.Ref.Name, spec.Output)
	}
	return closers, nil
}

func (b *Backend) Stop(ctx context.Context, ref process.ProcessRef) error {
	b.mu.Lock()
	p := b.procs[ref]
	b.mu.Unlock()
	if p == nil {
		return fmt.Errorf("%s: %w", ref, process.ErrNotFound)
	}
	select {
	case <-p.done:
		return nil
	default:
	}
	return b.Kill(ctx, ref, syscall.SIGTERM)
}

func (b *Backend) Kill(ctx context.Context, ref process.ProcessRef, signal syscall.Signal) error {
	_ = ctx
	b.mu.Lock()
	var proc *os.Process
	var done chan struct{}
	if p := b.procs[ref]; p != nil {
		proc, done = p.proc, p.done
	}
	b.mu.Unlock()
	if proc == nil {
		return fmt.Errorf("%s: %w", ref, process.ErrNotRunning)
	}
	// The group may have been reaped and its ID reused.
	select {
	case <-done:
		return fmt.Errorf("%s: %w", ref, process.ErrNotRunning)
	default:
	}

	// Try process group first (negative PID), then fall back to direct process.
	if proc.Pid > 0 {
		_ = unix.Kill(-proc.Pid, signal)
	}
	if err := proc.Signal(signal); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("%s: %w", ref, process.ErrNotRunning)
		}
		return err
	}
	return nil
}

func (b *Backend) Wait(ctx context.Context, ref process.ProcessRef) (process.ProcessExit, error) {
	b.mu.Lock()
	p := b.procs[ref]
	b.mu.Unlock()
	if p == nil {
		return process.ProcessExit{}, fmt.Errorf("%s: %w", ref, process.ErrNotFound)
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return process.ProcessExit{}, ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return process.ProcessExit{Ref: ref, ExitCode: p.exitCode, Result: p.result}, nil
}

func (b *Backend) waitForExit(p *procState, collect bool) {
	err := p.cmd.Wait()
	closeAll(p.closers)

	exitCode, result := exitInfo(err)

	state := process.ProcessStateExited
	if exitCode != 0 {
		state = process.ProcessStateFailed
	}

	b.mu.Lock()
	p.exitErr = err
	p.exitCode = exitCode
	p.result = result
	p.exitState = state
	if collect {
		delete(b.procs, p.ref)
	}
	b.mu.Unlock()

	close(p.done)
}

// exitInfo maps a Wait error to an exit code and a systemd-style result.
// Death by signal reports 128+signal, as shells do.
func exitInfo(err error) (int, string) {
	if err == nil {
		return 0, "success"
	}
	var ee *osexec.ExitError
	if !errors.As(err, &ee) {
		return 1, "resources"
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), "signal"
	}
	return ee.ExitCode(), "exit-code"
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

func envList(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func pidOf(proc *os.Process) int {
	if proc == nil {
		return 0
	}
	return proc.Pid
}
