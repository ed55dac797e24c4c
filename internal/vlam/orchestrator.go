// Package vlam builds the launch description for the fiducial_vlam
// teleop setup: rviz2, the Tello driver, and the vloc/vmap nodes.
//
// Paths and parameters are produced by explicit calls and passed along;
// nothing is computed at package init.
package vlam

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ptrmu/fiducial-vlam-fg/internal/ament"
	"gopkg.in/yaml.v3"
)

const (
	PackageName       = "fiducial_vlam"
	DriverPackageName = "tello_driver"

	MapFileName   = "fiducial_marker_locations_office.yaml"
	ViewerCommand = "rviz2"
)

// PathSet holds the files the launched processes read at start-up.
// None of them are checked for existence.
type PathSet struct {
	PackageRoot string `yaml:"package_root"`
	ConfigDir   string `yaml:"config_dir"`
	MapFile     string `yaml:"map_file"`
	RvizConfig  string `yaml:"rviz_config"`
}

// ParameterSets groups the three node configurations.
type ParameterSets struct {
	Driver       ParameterSet
	Localization ParameterSet
	Mapping      ParameterSet
}

// Output selects where a process writes stdout and stderr.
type Output string

const (
	OutputScreen Output = "screen"
	OutputLog    Output = "log"
)

// ProcessSpec describes one process to start. A node is identified by
// Package and Executable; anything else is a raw Command.
type ProcessSpec struct {
	Package    string        `yaml:"package,omitempty"`
	Executable string        `yaml:"executable,omitempty"`
	Command    []string      `yaml:"cmd,omitempty,flow"`
	Parameters *ParameterSet `yaml:"parameters,omitempty"`
	Output     Output        `yaml:"output"`
}

// IsNode reports whether the spec names a package executable.
func (s ProcessSpec) IsNode() bool {
	return s.Package != ""
}

// BaseName is the executable name used to label the process.
func (s ProcessSpec) BaseName() string {
	if s.IsNode() {
		return s.Executable
	}
	if len(s.Command) == 0 {
		return ""
	}
	return filepath.Base(s.Command[0])
}

// Description is everything a launch facility needs.
type Description struct {
	Paths     PathSet       `yaml:"paths"`
	Processes []ProcessSpec `yaml:"processes"`
}

// ResolvePaths looks up the installed fiducial_vlam share directory and
// derives the map and rviz config paths under its cfg directory.
func ResolvePaths(loc ament.Locator) (PathSet, error) {
	root, err := loc.ShareDirectory(PackageName)
	if err != nil {
		return PathSet{}, fmt.Errorf("resolving paths: %w", err)
	}
	cfg := filepath.Join(root, "cfg")
	return PathSet{
		PackageRoot: root,
		ConfigDir:   cfg,
		MapFile:     filepath.Join(cfg, MapFileName),
		RvizConfig:  filepath.Join(cfg, PackageName+".rviz"),
	}, nil
}

// BuildParameterSets returns the fixed node configurations. Only the map
// filename depends on paths.
func BuildParameterSets(paths PathSet) ParameterSets {
	driver := DriverParams{
		DroneIP:     "192.168.0.35",
		CommandPort: 38065,
		DronePort:   8889,
		DataPort:    8890,
		VideoPort:   11111,
	}
	vloc := LocalizationParams{
		UseSimTime:                         false,
		PublishTFs:                         1,
		StampMsgsWithCurrentTime:           0,
		MapInitPoseZ:                       -0.035,
		BaseOdometryPubTopic:               "filtered_odom",
		SubCameraInfoBestEffortNotReliable: 1,
		PublishImageMarked:                 1,
	}
	vmap := MappingParams{
		UseSimTime:   false,
		PublishTFs:   1,
		MarkerLength: 0.1778,
		LoadFilename: paths.MapFile,
	}
	return ParameterSets{
		Driver:       driver.ParameterSet(),
		Localization: vloc.ParameterSet(),
		Mapping:      vmap.ParameterSet(),
	}
}

// BuildProcessSpecs returns viewer, driver, vloc and vmap, in that order.
// The order carries no start-up dependency.
func BuildProcessSpecs(paths PathSet, sets ParameterSets) []ProcessSpec {
	driver, vloc, vmap := sets.Driver, sets.Localization, sets.Mapping
	return []ProcessSpec{
		{
			Command: []string{ViewerCommand, "-d", paths.RvizConfig},
			Output:  OutputScreen,
		},
		{
			Package:    DriverPackageName,
			Executable: "tello_driver_main",
			Parameters: &driver,
			Output:     OutputScreen,
		},
		{
			Package:    PackageName,
			Executable: "vloc_main",
			Parameters: &vloc,
			Output:     OutputScreen,
		},
		{
			Package:    PackageName,
			Executable: "vmap_main",
			Parameters: &vmap,
			Output:     OutputScreen,
		},
	}
}

// GenerateLaunchDescription resolves paths, prints them to diag, and
// builds the process list. A lookup failure stops it before anything
// else is built.
func GenerateLaunchDescription(loc ament.Locator, diag io.Writer) (Description, error) {
	paths, err := ResolvePaths(loc)
	if err != nil {
		return Description{}, err
	}
	if diag != nil {
		WritePaths(diag, paths)
	}
	sets := BuildParameterSets(paths)
	return Description{
		Paths:     paths,
		Processes: BuildProcessSpecs(paths, sets),
	}, nil
}

// WritePaths prints the map and rviz config paths, one labelled line
// each, two spaces after the colon.
func WritePaths(w io.Writer, paths PathSet) {
	fmt.Fprintf(w, "map_filename:  %s\n", paths.MapFile)
	fmt.Fprintf(w, "rviz_config_filename:  %s\n", paths.RvizConfig)
}

// MarshalDescription renders desc as YAML with two-space indentation.
func MarshalDescription(desc Description) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(desc); err != nil {
		return nil, fmt.Errorf("encoding description: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
