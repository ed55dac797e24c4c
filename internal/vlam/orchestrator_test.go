package vlam

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/ptrmu/fiducial-vlam-fg/internal/ament"
)

// countingLocator records lookups so tests can assert nothing ran after
// a failure.
type countingLocator struct {
	ament.Locator
	shareCalls int
}

func (c *countingLocator) ShareDirectory(pkg string) (string, error) {
	c.shareCalls++
	return c.Locator.ShareDirectory(pkg)
}

func pkgRoot(root string) ament.Locator {
	return ament.Static{Shares: map[string]string{PackageName: root}}
}

func TestResolvePaths(t *testing.T) {
	paths, err := ResolvePaths(pkgRoot("/opt/ros/pkg"))
	if err != nil {
		t.Fatalf("ResolvePaths: %v", err)
	}

	if paths.PackageRoot != "/opt/ros/pkg" {
		t.Errorf("PackageRoot = %q", paths.PackageRoot)
	}
	if paths.ConfigDir != "/opt/ros/pkg/cfg" {
		t.Errorf("ConfigDir = %q", paths.ConfigDir)
	}
	if want := "/opt/ros/pkg/cfg/fiducial_marker_locations_office.yaml"; paths.MapFile != want {
		t.Errorf("MapFile = %q, want %q", paths.MapFile, want)
	}
	if want := "/opt/ros/pkg/cfg/fiducial_vlam.rviz"; paths.RvizConfig != want {
		t.Errorf("RvizConfig = %q, want %q", paths.RvizConfig, want)
	}
}

func TestResolvePaths_Deterministic(t *testing.T) {
	loc := pkgRoot("/opt/ros/pkg")
	first, err := ResolvePaths(loc)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := ResolvePaths(loc)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("call %d: %+v != %+v", i, again, first)
		}
	}
}

func TestResolvePaths_NotFound(t *testing.T) {
	_, err := ResolvePaths(ament.Static{})
	if !errors.Is(err, ament.ErrPackageNotFound) {
		t.Fatalf("expected ErrPackageNotFound, got %v", err)
	}
}

func TestGenerateLaunchDescription_NotFoundStopsEarly(t *testing.T) {
	loc := &countingLocator{Locator: ament.Static{}}
	var diag bytes.Buffer

	desc, err := GenerateLaunchDescription(loc, &diag)
	if !errors.Is(err, ament.ErrPackageNotFound) {
		t.Fatalf("expected ErrPackageNotFound, got %v", err)
	}
	if len(desc.Processes) != 0 {
		t.Errorf("expected no processes, got %d", len(desc.Processes))
	}
	if diag.Len() != 0 {
		t.Errorf("expected no diagnostics, got %q", diag.String())
	}
	if loc.shareCalls != 1 {
		t.Errorf("shareCalls = %d, want 1", loc.shareCalls)
	}
}

func TestGenerateLaunchDescription_Diagnostics(t *testing.T) {
	var diag bytes.Buffer
	desc, err := GenerateLaunchDescription(pkgRoot("/opt/ros/pkg"), &diag)
	if err != nil {
		t.Fatal(err)
	}

	want := "map_filename:  /opt/ros/pkg/cfg/fiducial_marker_locations_office.yaml\n" +
		"rviz_config_filename:  /opt/ros/pkg/cfg/fiducial_vlam.rviz\n"
	if diag.String() != want {
		t.Errorf("diagnostics = %q, want %q", diag.String(), want)
	}
	if len(desc.Processes) != 4 {
		t.Errorf("len(Processes) = %d, want 4", len(desc.Processes))
	}
}

func TestBuildParameterSets_Keys(t *testing.T) {
	paths, _ := ResolvePaths(pkgRoot("/opt/ros/pkg"))
	sets := BuildParameterSets(paths)

	tests := []struct {
		name string
		set  ParameterSet
		want []string
	}{
		{"driver", sets.Driver, DriverParamNames},
		{"localization", sets.Localization, LocalizationParamNames},
		{"mapping", sets.Mapping, MappingParamNames},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.Names(); !slices.Equal(got, tt.want) {
				t.Errorf("Names = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildParameterSets_Values(t *testing.T) {
	paths, _ := ResolvePaths(pkgRoot("/opt/ros/pkg"))
	sets := BuildParameterSets(paths)

	tests := []struct {
		set   ParameterSet
		name  string
		value any
	}{
		{sets.Driver, "drone_ip", "192.168.0.35"},
		{sets.Driver, "command_port", 38065},
		{sets.Driver, "drone_port", 8889},
		{sets.Driver, "data_port", 8890},
		{sets.Driver, "video_port", 11111},
		{sets.Localization, "use_sim_time", false},
		{sets.Localization, "psl_publish_tfs", 1},
		{sets.Localization, "stamp_msgs_with_current_time", 0},
		{sets.Localization, "map_init_pose_z", -0.035},
		{sets.Localization, "psl_base_odometry_pub_topic", "filtered_odom"},
		{sets.Localization, "psl_sub_camera_info_best_effort_not_reliable", 1},
		{sets.Localization, "psl_publish_image_marked", 1},
		{sets.Mapping, "use_sim_time", false},
		{sets.Mapping, "psm_publish_tfs", 1},
		{sets.Mapping, "map_marker_length", 0.1778},
		{sets.Mapping, "map_load_filename", paths.MapFile},
	}
	for _, tt := range tests {
		got, ok := tt.set.Get(tt.name)
		if !ok {
			t.Errorf("%s: missing", tt.name)
			continue
		}
		if got != tt.value {
			t.Errorf("%s = %#v, want %#v", tt.name, got, tt.value)
		}
	}
}

func TestBuildParameterSets_MapInitPoseZIndependentOfPaths(t *testing.T) {
	for _, root := range []string{"/opt/ros/pkg", "/home/me/ws/install/fiducial_vlam/share/fiducial_vlam", ""} {
		sets := BuildParameterSets(PathSet{MapFile: root + "/cfg/map.yaml"})
		z, _ := sets.Localization.Get("map_init_pose_z")
		if z != -0.035 {
			t.Errorf("root %q: map_init_pose_z = %v", root, z)
		}
	}
}

func TestBuildProcessSpecs_Order(t *testing.T) {
	paths, _ := ResolvePaths(pkgRoot("/opt/ros/pkg"))
	specs := BuildProcessSpecs(paths, BuildParameterSets(paths))

	if len(specs) != 4 {
		t.Fatalf("len = %d, want 4", len(specs))
	}

	viewer := specs[0]
	if viewer.IsNode() {
		t.Errorf("viewer should be a raw command")
	}
	if want := []string{"rviz2", "-d", "/opt/ros/pkg/cfg/fiducial_vlam.rviz"}; !slices.Equal(viewer.Command, want) {
		t.Errorf("viewer Command = %v, want %v", viewer.Command, want)
	}
	if viewer.Parameters != nil {
		t.Errorf("viewer should carry no parameters")
	}

	nodes := []struct {
		pkg, exe string
		params   []string
	}{
		{"tello_driver", "tello_driver_main", DriverParamNames},
		{"fiducial_vlam", "vloc_main", LocalizationParamNames},
		{"fiducial_vlam", "vmap_main", MappingParamNames},
	}
	for i, n := range nodes {
		s := specs[i+1]
		if s.Package != n.pkg || s.Executable != n.exe {
			t.Errorf("specs[%d] = %s/%s, want %s/%s", i+1, s.Package, s.Executable, n.pkg, n.exe)
		}
		if s.Parameters == nil || !slices.Equal(s.Parameters.Names(), n.params) {
			t.Errorf("specs[%d] parameters mismatch", i+1)
		}
	}

	for i, s := range specs {
		if s.Output != OutputScreen {
			t.Errorf("specs[%d].Output = %q, want screen", i, s.Output)
		}
	}
}

func TestProcessSpec_BaseName(t *testing.T) {
	tests := []struct {
		spec ProcessSpec
		want string
	}{
		{ProcessSpec{Command: []string{"/usr/bin/rviz2", "-d", "x"}}, "rviz2"},
		{ProcessSpec{Package: "fiducial_vlam", Executable: "vloc_main"}, "vloc_main"},
		{ProcessSpec{}, ""},
	}
	for _, tt := range tests {
		if got := tt.spec.BaseName(); got != tt.want {
			t.Errorf("BaseName(%+v) = %q, want %q", tt.spec, got, tt.want)
		}
	}
}

func TestDescription_YAML(t *testing.T) {
	desc, err := GenerateLaunchDescription(pkgRoot("/opt/ros/pkg"), nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := MarshalDescription(desc)
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	for _, want := range []string{
		"cmd: [rviz2, -d, /opt/ros/pkg/cfg/fiducial_vlam.rviz]",
		"executable: vloc_main",
		"map_init_pose_z: -0.035",
		"map_load_filename: /opt/ros/pkg/cfg/fiducial_marker_locations_office.yaml",
		"use_sim_time: false",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("YAML missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "tello_driver_main") > strings.Index(text, "vloc_main") {
		t.Errorf("driver should precede vloc:\n%s", text)
	}
}
