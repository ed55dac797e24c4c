package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/ptrmu/fiducial-vlam-fg/internal/ament"
	"github.com/ptrmu/fiducial-vlam-fg/internal/backend"
	_ "github.com/ptrmu/fiducial-vlam-fg/internal/backend/all"
	"github.com/ptrmu/fiducial-vlam-fg/internal/launcher"
	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
	"github.com/ptrmu/fiducial-vlam-fg/internal/vlam"
)

// stopTimeout bounds how long an interrupted launch waits for its
// processes to stop before they are killed.
const stopTimeout = 10 * time.Second

// locator returns the package locator, honoring --share-dir.
func locator() ament.Locator {
	index := ament.FromEnv()
	if shareDirFlag == "" {
		return index
	}
	return ament.Overlay{
		Primary:  ament.Static{Shares: map[string]string{vlam.PackageName: shareDirFlag}},
		Fallback: index,
	}
}

// openBackend opens the backend chosen by --backend.
func openBackend(ctx context.Context) (process.ProcessBackend, backend.Kind) {
	kind, err := backend.ParseKind(backendFlag)
	if err != nil {
		usage("%v", err)
	}
	if kind == backend.KindAuto {
		kind = backend.DetectKind()
	}
	bk, err := backend.Open(ctx, backend.Config{
		Kind:  kind,
		Color: term.IsTerminal(int(os.Stdout.Fd())),
	})
	if err != nil {
		fatal("initializing backend: %v", err)
	}
	return bk, kind
}

func cmdUp() int {
	loc := locator()
	desc, err := vlam.GenerateLaunchDescription(loc, os.Stderr)
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bk, kind := openBackend(ctx)
	defer bk.Close()

	if detachFlag && kind != backend.KindSystemd {
		usage("--detach needs --backend systemd; exec processes exit with vlam-launch")
	}

	l := &launcher.Launcher{
		Backend:    bk,
		Locator:    loc,
		RuntimeDir: runtimeDirFlag,
		Logger:     slog.Default(),
	}
	if detachFlag {
		l.Output = process.OutputLog
		l.Collect = true
	}

	h, err := l.Launch(ctx, desc.Processes)
	if h == nil {
		fatal("launching: %v", err)
	}
	code := exitOK
	if err != nil {
		fmt.Fprintf(os.Stderr, "vlam-launch: some processes failed to start:\n%v\n", err)
		code = exitError
	}

	if detachFlag {
		fmt.Printf("%s started\n", h.ID())
		fmt.Fprintf(os.Stderr, "vlam-launch: vlam-launch --backend systemd stop %s\n", h.ID())
		return code
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.Wait(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("waiting for processes", "error", err)
			return exitError
		}
		if ctx.Err() == nil {
			return code
		}
	case <-ctx.Done():
	}

	// Interrupted: stop the whole group.
	stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := h.Stop(stopCtx); err != nil {
		slog.Warn("stopping launch", "launch", h.ID(), "error", err)
	}
	// Whatever is still running when this gives up is killed by Close.
	if _, err := h.Wait(stopCtx); err != nil {
		slog.Warn("processes did not exit in time", "launch", h.ID(), "timeout", stopTimeout)
	}
	return exitInterrupted
}
