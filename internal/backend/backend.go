// Package backend selects the process backend a launch runs on.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

// Kind identifies a backend implementation.
type Kind string

const (
	// KindExec runs processes as children of the launching command.
	KindExec Kind = "exec"
	// KindSystemd runs processes as transient user units.
	KindSystemd Kind = "systemd"
	// KindAuto picks systemd when a user manager is reachable.
	KindAuto Kind = "auto"
)

// Config configures a backend implementation.
type Config struct {
	Kind Kind

	// Stdout and Stderr receive screen output on backends that copy it.
	// They default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// Color enables colored process prefixes on screen output.
	Color bool
}

type opener func(ctx context.Context, cfg Config) (process.ProcessBackend, error)

var openers = map[Kind]opener{}

// Register makes a backend implementation available to Open.
// Implementations should call this from init().
func Register(kind Kind, o opener) {
	if kind == "" {
		panic("backend: register with empty kind")
	}
	if o == nil {
		panic("backend: register with nil opener")
	}
	if _, exists := openers[kind]; exists {
		panic("backend: duplicate register for kind " + string(kind))
	}
	openers[kind] = o
}

// Kinds returns the registered kinds, sorted.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(openers))
	for k := range openers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Choices lists the accepted --backend values.
func Choices() []string {
	var out []string
	for _, k := range Kinds() {
		out = append(out, string(k))
	}
	return append(out, string(KindAuto))
}

// ParseKind validates a --backend value against the registered kinds.
// Empty means exec.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindExec, nil
	}
	if slices.Contains(Choices(), string(k)) {
		return k, nil
	}
	return "", fmt.Errorf("unknown backend %q (want one of: %s)", s, strings.Join(Choices(), ", "))
}

// Open constructs a backend from cfg. The requested Kind must be registered.
func Open(ctx context.Context, cfg Config) (process.ProcessBackend, error) {
	cfg = withDefaults(cfg)
	o, ok := openers[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
	return o(ctx, cfg)
}

// DetectKind returns systemd if the systemd user service is available on
// D-Bus, otherwise exec.
func DetectKind() Kind {
	if hasSystemdUserService() {
		return KindSystemd
	}
	return KindExec
}

// hasSystemdUserService checks if a systemd user session is available by
// asking the session bus who owns org.freedesktop.systemd1. A D-Bus
// daemon without systemd behind it does not count.
func hasSystemdUserService() bool {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	var owner string
	err = conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus").
		Call("org.freedesktop.DBus.GetNameOwner", 0, "org.freedesktop.systemd1").
		Store(&owner)

	return err == nil && owner != ""
}

func withDefaults(cfg Config) Config {
	if cfg.Kind == "" {
		cfg.Kind = KindExec
	}
	if cfg.Kind == KindAuto {
		cfg.Kind = DetectKind()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return cfg
}
