// Package systemd registers the transient-unit backend.
package systemd

import (
	"context"
	"fmt"

	"github.com/ptrmu/fiducial-vlam-fg/internal/backend"
	systemdproc "github.com/ptrmu/fiducial-vlam-fg/internal/platform/systemd/process"
	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

func init() {
	backend.Register(backend.KindSystemd, Open)
}

// Open connects to the user's systemd. Screen output goes to the
// caller's own stdout and stderr descriptors; cfg.Stdout and cfg.Stderr
// are not copied.
func Open(ctx context.Context, cfg backend.Config) (process.ProcessBackend, error) {
	sd, err := systemdproc.ConnectUserSystemd(ctx)
	if err != nil {
		if systemdproc.IsUnavailable(err) {
			return nil, fmt.Errorf("no user systemd available (try --backend exec): %w", err)
		}
		return nil, err
	}
	return systemdproc.NewSystemdBackend(sd), nil
}
