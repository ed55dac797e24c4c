// Package fake provides an in-memory ProcessBackend for tests.
package fake

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

// FakeCommand simulates a process. It receives the command arguments and
// returns an exit code. The context is cancelled when the process is
// stopped or killed, and the command must return promptly when it is.
type FakeCommand func(ctx context.Context, stdout, stderr io.Writer, args []string) int

type fakeProcess struct {
	spec    process.ProcessSpec
	started time.Time
	pid     uint32
	cancel  context.CancelFunc
	signal  syscall.Signal
	output  bytes.Buffer
	done    chan struct{}
	exit    process.ProcessExit
	state   process.ProcessState
}

// Backend is an in-memory implementation of process.ProcessBackend.
// Processes without a registered command run until stopped, killed, or
// finished with Exit.
type Backend struct {
	mu        sync.Mutex
	procs     map[process.ProcessRef]*fakeProcess
	commands  map[string]FakeCommand
	startErrs map[string]error
	starts    []process.ProcessSpec
	stops     []process.ProcessRef
	nextPID   uint32
	closed    bool
}

var _ process.ProcessBackend = (*Backend)(nil)

func NewBackend() *Backend {
	return &Backend{
		procs:     make(map[process.ProcessRef]*fakeProcess),
		commands:  make(map[string]FakeCommand),
		startErrs: make(map[string]error),
		nextPID:   1000,
	}
}

// RegisterCommand registers a fake implementation for an executable.
// The name should match the first element of the command slice.
func (b *Backend) RegisterCommand(name string, cmd FakeCommand) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[name] = cmd
}

// FailStart makes Start return err for the process with this name.
func (b *Backend) FailStart(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startErrs[name] = err
}

// Starts returns every spec passed to Start, in call order, including
// ones that failed.
func (b *Backend) Starts() []process.ProcessSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.starts)
}

// Stops returns the refs passed to Stop, in call order.
func (b *Backend) Stops() []process.ProcessRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.stops)
}

// Output returns what the process wrote to stdout and stderr.
func (b *Backend) Output(ref process.ProcessRef) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[ref]
	if !ok {
		return ""
	}
	return p.output.String()
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) Start(ctx context.Context, spec process.ProcessSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.starts = append(b.starts, spec)
	if len(spec.Command) == 0 {
		return process.ErrEmptyCommand
	}
	if err := b.startErrs[spec.Ref.Name]; err != nil {
		return err
	}
	if _, exists := b.procs[spec.Ref]; exists {
		return fmt.Errorf("%s: %w", spec.Ref, process.ErrAlreadyExists)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.nextPID++
	p := &fakeProcess{
		spec:    spec,
		started: time.Now(),
		pid:     b.nextPID,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   process.ProcessStateRunning,
	}
	b.procs[spec.Ref] = p

	cmd := b.commands[spec.Command[0]]
	go func() {
		var code int
		if cmd != nil {
			w := &lockedWriter{mu: &b.mu, buf: &p.output}
			code = cmd(runCtx, w, w, slices.Clone(spec.Command))
		} else {
			<-runCtx.Done()
		}
		b.finish(p, code)
	}()
	return nil
}

// Exit finishes a process that has no registered command.
func (b *Backend) Exit(ref process.ProcessRef, code int) error {
	b.mu.Lock()
	p, ok := b.procs[ref]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", ref, process.ErrNotFound)
	}
	b.mu.Unlock()
	b.finish(p, code)
	return nil
}

func (b *Backend) finish(p *fakeProcess, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-p.done:
		return
	default:
	}

	result := "success"
	switch {
	case p.signal != 0:
		code = 128 + int(p.signal)
		result = "signal"
	case code != 0:
		result = "exit-code"
	}

	p.exit = process.ProcessExit{Ref: p.spec.Ref, ExitCode: code, Result: result}
	if code == 0 {
		p.state = process.ProcessStateExited
	} else {
		p.state = process.ProcessStateFailed
	}
	p.cancel()
	close(p.done)
}

func (b *Backend) Stop(ctx context.Context, ref process.ProcessRef) error {
	b.mu.Lock()
	b.stops = append(b.stops, ref)
	p, ok := b.procs[ref]
	b.mu.Unlock()
	if !ok {
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
	b.mu.Lock()
	p, ok := b.procs[ref]
	if !ok || p.state.Done() {
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", ref, process.ErrNotRunning)
	}
	p.signal = signal
	b.mu.Unlock()

	p.cancel()
	if _, err := b.Wait(ctx, ref); err != nil {
		return err
	}
	return nil
}

func (b *Backend) Wait(ctx context.Context, ref process.ProcessRef) (process.ProcessExit, error) {
	b.mu.Lock()
	p, ok := b.procs[ref]
	b.mu.Unlock()
	if !ok {
		return process.ProcessExit{}, fmt.Errorf("%s: %w", ref, process.ErrNotFound)
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return process.ProcessExit{}, ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return p.exit, nil
}

func (b *Backend) Describe(ctx context.Context, ref process.ProcessRef) (*process.ProcessStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, process.ErrNotFound)
	}
	st := p.status()
	return &st, nil
}

func (b *Backend) List(ctx context.Context, filter process.ProcessFilter) ([]process.ProcessStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []process.ProcessStatus
	for _, p := range b.procs {
		st := p.status()
		if filter.Matches(st) {
			out = append(out, st)
		}
	}
	slices.SortFunc(out, func(a, c process.ProcessStatus) int {
		if a.Ref.LaunchID != c.Ref.LaunchID {
			return cmp.Compare(a.Ref.LaunchID, c.Ref.LaunchID)
		}
		return cmp.Compare(a.Ref.Name, c.Ref.Name)
	})
	return out, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	procs := make([]*fakeProcess, 0, len(b.procs))
	for _, p := range b.procs {
		procs = append(procs, p)
	}
	b.mu.Unlock()

	for _, p := range procs {
		_ = b.Kill(context.Background(), p.spec.Ref, syscall.SIGKILL)
	}
	return nil
}

// status must be called with b.mu held.
func (p *fakeProcess) status() process.ProcessStatus {
	return process.ProcessStatus{
		Ref:         p.spec.Ref,
		State:       p.state,
		Description: p.spec.Description,
		Started:     p.started,
		PID:         p.pid,
		WorkingDir:  p.spec.WorkingDir,
		ExitStatus:  int32(p.exit.ExitCode),
	}
}

// lockedWriter appends to a process buffer under the backend lock.
type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
