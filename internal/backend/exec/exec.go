// Package exec registers the child-process backend.
package exec

import (
	"context"

	"github.com/ptrmu/fiducial-vlam-fg/internal/backend"
	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
	execproc "github.com/ptrmu/fiducial-vlam-fg/internal/process/exec"
)

func init() {
	backend.Register(backend.KindExec, Open)
}

// Open returns a backend whose processes die with the caller.
func Open(ctx context.Context, cfg backend.Config) (process.ProcessBackend, error) {
	return execproc.New(
		execproc.WithScreen(cfg.Stdout, cfg.Stderr),
		execproc.WithColor(cfg.Color),
	), nil
}
