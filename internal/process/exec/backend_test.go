package exec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

// syncBuffer is a bytes.Buffer safe for the output copy goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testRef(name string) process.ProcessRef {
	return process.ProcessRef{LaunchID: "test0001", Name: name}
}

func waitExit(t *testing.T, b *Backend, ref process.ProcessRef) process.ProcessExit {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exit, err := b.Wait(ctx, ref)
	if err != nil {
		t.Fatalf("Wait(%s): %v", ref, err)
	}
	return exit
}

func TestBackend_ScreenOutputIsPrefixed(t *testing.T) {
	var stdout, stderr syncBuffer
	b := New(WithScreen(&stdout, &stderr))
	defer b.Close()

	ref := testRef("echo-1")
	err := b.Start(context.Background(), process.ProcessSpec{
		Ref:     ref,
		Command: []string{"/bin/sh", "-c", "echo out; echo err >&2; printf tail"},
		Output:  process.OutputScreen,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	exit := waitExit(t, b, ref)
	if exit.ExitCode != 0 || exit.Result != "success" {
		t.Errorf("exit = %+v", exit)
	}
	if got := stdout.String(); got != "[echo-1] out\n[echo-1] tail\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := stderr.String(); got != "[echo-1] err\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestBackend_LogOutput(t *testing.T) {
	dir := t.TempDir()
	b := New()
	defer b.Close()

	ref := testRef("vmap_main-4")
	err := b.Start(context.Background(), process.ProcessSpec{
		Ref:     ref,
		Command: []string{"/bin/sh", "-c", "echo loaded map"},
		Output:  process.OutputLog,
		LogDir:  dir,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitExit(t, b, ref)

	data, err := os.ReadFile(filepath.Join(dir, "vmap_main-4.log"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "loaded map\n" {
		t.Errorf("log = %q", data)
	}
}

func TestBackend_LogOutputNeedsDir(t *testing.T) {
	b := New()
	defer b.Close()

	err := b.Start(context.Background(), process.ProcessSpec{
		Ref:     testRef("x-1"),
		Command: []string{"/bin/true"},
		Output:  process.OutputLog,
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestBackend_ExitCodeAndState(t *testing.T) {
	b := New(WithScreen(&syncBuffer{}, &syncBuffer{}))
	defer b.Close()

	ref := testRef("fail-1")
	if err := b.Start(context.Background(), process.ProcessSpec{
		Ref:     ref,
		Command: []string{"/bin/sh", "-c", "exit 3"},
	}); err != nil {
		t.Fatal(err)
	}

	exit := waitExit(t, b, ref)
	if exit.ExitCode != 3 || exit.Result != "exit-code" {
		t.Errorf("exit = %+v", exit)
	}

	st, err := b.Describe(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != process.ProcessStateFailed || st.ExitStatus != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestBackend_StopSendsTerm(t *testing.T) {
	b := New(WithScreen(&syncBuffer{}, &syncBuffer{}))
	defer b.Close()

	ref := testRef("sleep-1")
	if err := b.Start(context.Background(), process.ProcessSpec{
		Ref:     ref,
		Command: []string{"/bin/sh", "-c", "exec sleep 30"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := b.Stop(context.Background(), ref); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	exit := waitExit(t, b, ref)
	if exit.Result != "signal" || exit.ExitCode != 128+int(syscall.SIGTERM) {
		t.Errorf("exit = %+v", exit)
	}

	// Stopping an exited process is not an error; killing it is.
	if err := b.Stop(context.Background(), ref); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if err := b.Kill(context.Background(), ref, syscall.SIGKILL); !errors.Is(err, process.ErrNotRunning) {
		t.Errorf("Kill after exit: %v", err)
	}
}

func TestBackend_StartErrors(t *testing.T) {
	b := New(WithScreen(&syncBuffer{}, &syncBuffer{}))
	defer b.Close()
	ctx := context.Background()

	if err := b.Start(ctx, process.ProcessSpec{Ref: testRef("empty-1")}); !errors.Is(err, process.ErrEmptyCommand) {
		t.Errorf("empty command: %v", err)
	}

	missing := process.ProcessSpec{Ref: testRef("missing-1"), Command: []string{"/nonexistent/vloc_main"}}
	if err := b.Start(ctx, missing); err == nil {
		t.Errorf("expected start failure for missing binary")
	}
	if _, err := b.Describe(ctx, missing.Ref); !errors.Is(err, process.ErrNotFound) {
		t.Errorf("failed start should leave no record: %v", err)
	}

	ref := testRef("dup-1")
	spec := process.ProcessSpec{Ref: ref, Command: []string{"/bin/sh", "-c", "exec sleep 30"}}
	if err := b.Start(ctx, spec); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(ctx, spec); !errors.Is(err, process.ErrAlreadyExists) {
		t.Errorf("duplicate: %v", err)
	}
}

func TestBackend_EnvironmentReplacesInherited(t *testing.T) {
	var stdout syncBuffer
	b := New(WithScreen(&stdout, &syncBuffer{}))
	defer b.Close()

	t.Setenv("VLAM_TEST_INHERITED", "yes")
	ref := testRef("env-1")
	if err := b.Start(context.Background(), process.ProcessSpec{
		Ref:         ref,
		Command:     []string{"/bin/sh", "-c", `echo "${ROS_DOMAIN_ID}:${VLAM_TEST_INHERITED}"`},
		Environment: map[string]string{"ROS_DOMAIN_ID": "7"},
	}); err != nil {
		t.Fatal(err)
	}
	waitExit(t, b, ref)

	if got := stdout.String(); got != "[env-1] 7:\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestBackend_ListFilters(t *testing.T) {
	b := New(WithScreen(&syncBuffer{}, &syncBuffer{}))
	defer b.Close()
	ctx := context.Background()

	for _, ref := range []process.ProcessRef{
		{LaunchID: "aaaa0001", Name: "vmap_main-4"},
		{LaunchID: "aaaa0001", Name: "rviz2-1"},
		{LaunchID: "bbbb0002", Name: "rviz2-1"},
	} {
		if err := b.Start(ctx, process.ProcessSpec{Ref: ref, Command: []string{"/bin/sh", "-c", "exec sleep 30"}}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := b.List(ctx, process.ProcessFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List = %d entries", len(all))
	}

	one, _ := b.List(ctx, process.ProcessFilter{LaunchID: "aaaa0001"})
	var names []string
	for _, st := range one {
		names = append(names, st.Ref.Name)
		if st.State != process.ProcessStateRunning || st.PID == 0 {
			t.Errorf("%s: %+v", st.Ref, st)
		}
	}
	if strings.Join(names, ",") != "rviz2-1,vmap_main-4" {
		t.Errorf("names = %v", names)
	}
}

func TestBackend_CloseKillsRunning(t *testing.T) {
	b := New(WithScreen(&syncBuffer{}, &syncBuffer{}))
	ref := testRef("sleep-1")
	if err := b.Start(context.Background(), process.ProcessSpec{Ref: ref, Command: []string{"/bin/sh", "-c", "exec sleep 30"}}); err != nil {
		t.Fatal(err)
	}

	b.Close()
	exit := waitExit(t, b, ref)
	if exit.ExitCode != 128+int(syscall.SIGKILL) {
		t.Errorf("exit = %+v", exit)
	}
}

func TestBackend_Collect(t *testing.T) {
	b := New(WithScreen(&syncBuffer{}, &syncBuffer{}))
	defer b.Close()

	ref := testRef("true-1")
	if err := b.Start(context.Background(), process.ProcessSpec{Ref: ref, Command: []string{"/bin/sh", "-c", "exit 0"}, Collect: true}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := b.Describe(context.Background(), ref); errors.Is(err, process.ErrNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("collected process still listed")
}

func TestBackend_WaitContext(t *testing.T) {
	b := New(WithScreen(&syncBuffer{}, &syncBuffer{}))
	defer b.Close()

	ref := testRef("sleep-1")
	if err := b.Start(context.Background(), process.ProcessSpec{Ref: ref, Command: []string{"/bin/sh", "-c", "exec sleep 30"}}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Wait(ctx, ref); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want deadline exceeded", err)
	}
}
