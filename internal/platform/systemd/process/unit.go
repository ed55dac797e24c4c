package systemd

import (
	"fmt"
	"strings"
	"time"

	"github.com/ptrmu/fiducial-vlam-fg/internal/process"
)

const unitPrefix = "vlam-"

// UnitName is a typed systemd unit name with semantic methods.
type UnitName string

// ProcessUnit returns the unit name for one process of a launch.
func ProcessUnit(ref process.ProcessRef) UnitName {
	return UnitName(fmt.Sprintf("%s%s-%s.service", unitPrefix, ref.LaunchID, ref.Name))
}

// LaunchPattern matches every process unit of a launch, or of all
// launches when launchID is empty.
func LaunchPattern(launchID string) UnitName {
	if launchID == "" {
		return UnitName(unitPrefix + "*.service")
	}
	return UnitName(unitPrefix + launchID + "-*.service")
}

// Ref recovers the process reference from a unit name.
// e.g., "vlam-1a2b3c4d-vloc_main-3.service" -> {1a2b3c4d, vloc_main-3}
func (u UnitName) Ref() (process.ProcessRef, bool) {
	s := string(u)
	if !strings.HasPrefix(s, unitPrefix) || !strings.HasSuffix(s, ".service") {
		return process.ProcessRef{}, false
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, unitPrefix), ".service")
	launchID, name, ok := strings.Cut(s, "-")
	if !ok || launchID == "" || name == "" {
		return process.ProcessRef{}, false
	}
	return process.ProcessRef{LaunchID: launchID, Name: name}, true
}

// String returns the unit name as a string.
func (u UnitName) String() string {
	return string(u)
}

// SliceName is a typed systemd slice name.
type SliceName string

// LaunchSlice returns the slice grouping every process of a launch.
func LaunchSlice(launchID string) SliceName {
	return SliceName(fmt.Sprintf("%s%s.slice", unitPrefix, launchID))
}

// String returns the slice name as a string.
func (s SliceName) String() string {
	return string(s)
}

// UnitState represents the systemd active state.
type UnitState string

const (
	UnitStateActive       UnitState = "active"
	UnitStateActivating   UnitState = "activating"
	UnitStateDeactivating UnitState = "deactivating"
	UnitStateInactive     UnitState = "inactive"
	UnitStateFailed       UnitState = "failed"
)

// Unit represents a live systemd unit with its properties.
type Unit struct {
	Name        UnitName
	State       UnitState
	Slice       SliceName
	Description string
	Started     time.Time
	MainPID     uint32
	WorkingDir  string
	ExitStatus  int32
	// Result is the service result, e.g. "success", "exit-code", "signal".
	Result string
}

// TransientSpec defines properties for starting a transient unit.
type TransientSpec struct {
	Unit        UnitName
	Slice       SliceName
	ServiceType string // "exec", "simple", etc.
	WorkingDir  string
	Description string
	Environment map[string]string
	Command     []string
	Collect     bool // --collect: unload unit after it exits

	// SyslogIdentifier tags journal output of the unit.
	SyslogIdentifier string

	// Stdio file descriptors - when set, passed directly to the unit
	Stdout *int // nil = journal, set = pass this fd
	Stderr *int // nil = journal, set = pass this fd
}
