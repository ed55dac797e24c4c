package launcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

// ErrLaunchNotFound is returned by Attach when the backend has no
// processes for the launch ID.
var ErrLaunchNotFound = errors.New("launch not found")

// Attach rebuilds a Handle for a launch started by an earlier
// invocation. Only backends whose processes outlive the caller (systemd)
// have anything to attach to.
func Attach(ctx context.Context, backend process.ProcessBackend, id string, logger *slog.Logger) (*Handle, error) {
	list, err := backend.List(ctx, process.ProcessFilter{LaunchID: id})
	if err != nil {
		return nil, fmt.Errorf("listing launch %s: %w", id, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrLaunchNotFound)
	}
	if logger == nil {
		logger = slog.Default()
	}

	refs := make([]process.ProcessRef, len(list))
	for i, st := range list {
		refs[i] = st.Ref
	}
	slices.SortFunc(refs, func(a, b process.ProcessRef) int {
		return cmp.Or(cmp.Compare(processIndex(a.Name), processIndex(b.Name)), strings.Compare(a.Name, b.Name))
	})

	return &Handle{
		id:      id,
		backend: backend,
		refs:    refs,
		logger:  logger.With("launch", id),
	}, nil
}

// Launches returns the IDs of every launch the backend knows, sorted.
func Launches(ctx context.Context, backend process.ProcessBackend) ([]string, error) {
	list, err := backend.List(ctx, process.ProcessFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing launches: %w", err)
	}
	var ids []string
	for _, st := range list {
		if !slices.Contains(ids, st.Ref.LaunchID) {
			ids = append(ids, st.Ref.LaunchID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// processIndex extracts n from a process name <executable>-<n>.
func processIndex(name string) int {
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return 0
	}
	return n
}
