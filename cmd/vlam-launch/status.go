package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ptrmu/fiducial-vlam-fg/internal/launcher"
	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

func cmdStatus(id string) {
	ctx := context.Background()
	bk, _ := openBackend(ctx)
	defer bk.Close()

	if id != "" {
		printLaunch(ctx, bk, id)
		return
	}

	ids, err := launcher.Launches(ctx, bk)
	if err != nil {
		fatal("%v", err)
	}
	if len(ids) == 0 {
		fmt.Println("no launches")
		fmt.Println("vlam-launch --backend systemd --detach")
		return
	}
	for i, id := range ids {
		if i > 0 {
			fmt.Println()
		}
		printLaunch(ctx, bk, id)
	}
}

func printLaunch(ctx context.Context, bk process.ProcessBackend, id string) {
	h, err := launcher.Attach(ctx, bk, id, nil)
	if err != nil {
		if errors.Is(err, launcher.ErrLaunchNotFound) {
			fatal("no launch %s", id)
		}
		fatal("%v", err)
	}
	st, err := h.Status(ctx)
	if err != nil {
		fatal("%v", err)
	}

	fmt.Printf("launch %s\n", id)
	fmt.Printf("  %-22s %-8s %-6s %-8s %s\n", "NAME", "STATE", "AGE", "PID", "COMMAND")
	for _, s := range st {
		fmt.Printf("  %-22s %-8s %-6s %-8d %s\n", s.Ref.Name, s.State, formatAge(s.Started), s.PID, truncate(s.Description, 50))
	}
}

func cmdStop(id string) {
	ctx := context.Background()
	bk, _ := openBackend(ctx)
	defer bk.Close()

	h, err := launcher.Attach(ctx, bk, id, nil)
	if err != nil {
		fatal("%v", err)
	}
	if err := h.Stop(ctx); err != nil {
		fatal("stopping launch: %v", err)
	}
	fmt.Printf("%s stopped\n", id)
}

// formatAge converts a start time to a relative age like "2m", "1h", "3d".
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
