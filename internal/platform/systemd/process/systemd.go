package systemd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"

	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

// Systemd provides operations on systemd units via D-Bus.
type Systemd interface {
	// ListUnits returns units matching patterns in given states.
	ListUnits(ctx context.Context, patterns []UnitName, states []UnitState) ([]Unit, error)

	// GetUnit retrieves a single unit's properties.
	GetUnit(ctx context.Context, name UnitName) (*Unit, error)

	// StopUnit gracefully stops a unit, blocking until complete.
	StopUnit(ctx context.Context, name UnitName) error

	// KillUnit sends a signal to all processes in a unit.
	KillUnit(ctx context.Context, name UnitName, signal syscall.Signal) error

	// ResetFailedUnit clears the failed state so the name can be reused.
	ResetFailedUnit(ctx context.Context, name UnitName) error

	// StartTransient creates and starts a transient unit via D-Bus API.
	StartTransient(ctx context.Context, spec TransientSpec) error

	// Close releases the D-Bus connection.
	Close() error
}

// systemdConn implements Systemd using go-systemd/dbus.
type systemdConn struct {
	conn *dbus.Conn
}

// ConnectUserSystemd connects to the user's systemd instance.
func ConnectUserSystemd(ctx context.Context) (Systemd, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to user systemd: %w", err)
	}
	return &systemdConn{conn: conn}, nil
}

// Close releases the D-Bus connection.
func (s *systemdConn) Close() error {
	s.conn.Close()
	return nil
}

// ListUnits returns units matching patterns in given states.
func (s *systemdConn) ListUnits(
	ctx context.Context,
	patterns []UnitName,
	states []UnitState,
) ([]Unit, error) {
	// Convert typed slices to string slices
	patternStrs := make([]string, len(patterns))
	for i, p := range patterns {
		patternStrs[i] = p.String()
	}
	stateStrs := make([]string, len(states))
	for i, st := range states {
		stateStrs[i] = string(st)
	}

	units, err := s.conn.ListUnitsByPatternsContext(ctx, stateStrs, patternStrs)
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}

	result := make([]Unit, 0, len(units))
	for _, u := range units {
		unit, err := s.GetUnit(ctx, UnitName(u.Name))
		if err != nil {
			continue // Skip units we can't query
		}
		result = append(result, *unit)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// GetUnit retrieves a single unit's properties.
func (s *systemdConn) GetUnit(ctx context.Context, name UnitName) (*Unit, error) {
	unitProps, err := s.conn.GetUnitPropertiesContext(ctx, name.String())
	if err != nil {
		return nil, fmt.Errorf("getting unit properties: %w", err)
	}

	unit := &Unit{Name: name}

	if state, ok := unitProps["ActiveState"].(string); ok {
		unit.State = UnitState(state)
	}

	if desc, ok := unitProps["Description"].(string); ok {
		unit.Description = desc
	}

	if ts, ok := unitProps["ActiveEnterTimestamp"].(uint64); ok && ts > 0 {
		unit.Started = time.Unix(int64(ts/1000000), int64((ts%1000000)*1000))
	}

	// Try to get service-specific properties (will fail for non-service units like sockets)
	serviceProps, err := s.conn.GetUnitTypePropertiesContext(ctx, name.String(), "Service")
	if err == nil {
		if pid, ok := serviceProps["MainPID"].(uint32); ok {
			unit.MainPID = pid
		}

		if wd, ok := serviceProps["WorkingDirectory"].(string); ok {
			unit.WorkingDir = wd
		}

		if es, ok := serviceProps["ExecMainStatus"].(int32); ok {
			unit.ExitStatus = es
		}

		if res, ok := serviceProps["Result"].(string); ok {
			unit.Result = res
		}

		if slice, ok := serviceProps["Slice"].(string); ok {
			unit.Slice = SliceName(slice)
		}
	}

	return unit, nil
}

// StopUnit gracefully stops a unit, blocking until complete.
func (s *systemdConn) StopUnit(ctx context.Context, name UnitName) error {
	resultChan := make(chan string, 1)
	_, err := s.conn.StopUnitContext(ctx, name.String(), "replace", resultChan)
	if err != nil {
		return fmt.Errorf("stopping unit: %w", unitError(name, err))
	}

	select {
	case result := <-resultChan:
		if result != "done" {
			return fmt.Errorf("stop job failed: %s", result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// KillUnit sends a signal to all processes in a unit.
func (s *systemdConn) KillUnit(ctx context.Context, name UnitName, signal syscall.Signal) error {
	if err := s.conn.KillUnitWithTarget(ctx, name.String(), dbus.All, int32(signal)); err != nil {
		return fmt.Errorf("killing unit: %w", unitError(name, err))
	}
	return nil
}

func (s *systemdConn) ResetFailedUnit(ctx context.Context, name UnitName) error {
	if err := s.conn.ResetFailedUnitContext(ctx, name.String()); err != nil {
		return fmt.Errorf("resetting unit: %w", err)
	}
	return nil
}

// StartTransient creates and starts a transient unit via D-Bus API.
func (s *systemdConn) StartTransient(ctx context.Context, spec TransientSpec) error {
	resultChan := make(chan string, 1)
	_, err := s.conn.StartTransientUnitContext(
		ctx,
		spec.Unit.String(),
		"replace",
		transientProperties(spec),
		resultChan,
	)
	if err != nil {
		return fmt.Errorf("starting transient unit: %w", err)
	}

	select {
	case result := <-resultChan:
		// "failed" covers both a unit that could not start and one that
		// exited non-zero right away. Either way the unit exists and its
		// state tells the caller which it was.
		if result != "done" && result != "failed" {
			return fmt.Errorf("start job failed: %s", result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// noSuchUnit is the D-Bus error for a unit systemd has already unloaded.
const noSuchUnit = "org.freedesktop.systemd1.NoSuchUnit"

// unitError maps NoSuchUnit to process.ErrNotFound, keeping the D-Bus
// error in the chain.
func unitError(name UnitName, err error) error {
	var dbusErr godbus.Error
	var dbusErrPtr *godbus.Error
	switch {
	case errors.As(err, &dbusErr) && dbusErr.Name == noSuchUnit,
		errors.As(err, &dbusErrPtr) && dbusErrPtr != nil && dbusErrPtr.Name == noSuchUnit:
		return fmt.Errorf("%s: %w: %w", name, process.ErrNotFound, err)
	}
	return err
}

// transientProperties translates a TransientSpec into unit properties.
func transientProperties(spec TransientSpec) []dbus.Property {
	props := []dbus.Property{
		dbus.PropExecStart(spec.Command, false),
		dbus.PropDescription(spec.Description),
	}

	if spec.Slice != "" {
		props = append(props, dbus.PropSlice(spec.Slice.String()))
	}

	if spec.ServiceType != "" {
		props = append(props, dbus.PropType(spec.ServiceType))
	}

	if spec.WorkingDir != "" {
		props = append(props, dbus.Property{
			Name:  "WorkingDirectory",
			Value: godbus.MakeVariant(spec.WorkingDir),
		})
	}

	if len(spec.Environment) > 0 {
		envList := make([]string, 0, len(spec.Environment))
		for k, v := range spec.Environment {
			envList = append(envList, k+"="+v)
		}
		sort.Strings(envList)
		props = append(props, dbus.Property{
			Name:  "Environment",
			Value: godbus.MakeVariant(envList),
		})
	}

	if spec.SyslogIdentifier != "" {
		props = append(props, dbus.Property{
			Name:  "SyslogIdentifier",
			Value: godbus.MakeVariant(spec.SyslogIdentifier),
		})
	}

	// Handle stdio - either pass file descriptors or default to journal
	if spec.Stdout != nil {
		props = append(props, dbus.Property{
			Name:  "StandardOutputFileDescriptor",
			Value: godbus.MakeVariant(godbus.UnixFD(*spec.Stdout)),
		})
	} else {
		props = append(props, dbus.Property{
			Name:  "StandardOutput",
			Value: godbus.MakeVariant("journal"),
		})
	}

	if spec.Stderr != nil {
		props = append(props, dbus.Property{
			Name:  "StandardErrorFileDescriptor",
			Value: godbus.MakeVariant(godbus.UnixFD(*spec.Stderr)),
		})
	} else {
		props = append(props, dbus.Property{
			Name:  "StandardError",
			Value: godbus.MakeVariant("journal"),
		})
	}

	if spec.Collect {
		props = append(props, dbus.Property{
			Name:  "CollectMode",
			Value: godbus.MakeVariant("inactive-or-failed"),
		})
	}

	return props
}
