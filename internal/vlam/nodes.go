package vlam

// Option names accepted by each node, in the order they are written to
// parameter files.
var (
	DriverParamNames = []string{
		"drone_ip",
		"command_port",
		"drone_port",
		"data_port",
		"video_port",
	}
	LocalizationParamNames = []string{
		"use_sim_time",
		"psl_publish_tfs",
		"stamp_msgs_with_current_time",
		"map_init_pose_z",
		"psl_base_odometry_pub_topic",
		"psl_sub_camera_info_best_effort_not_reliable",
		"psl_publish_image_marked",
	}
	MappingParamNames = []string{
		"use_sim_time",
		"psm_publish_tfs",
		"map_marker_length",
		"map_load_filename",
	}
)

// DriverParams configures tello_driver_main.
type DriverParams struct {
	DroneIP     string `yaml:"drone_ip"`
	CommandPort int    `yaml:"command_port"`
	DronePort   int    `yaml:"drone_port"`
	DataPort    int    `yaml:"data_port"`
	VideoPort   int    `yaml:"video_port"`
}

func (p DriverParams) ParameterSet() ParameterSet {
	return mustParameterSet(DriverParamNames,
		Param{"drone_ip", p.DroneIP},
		Param{"command_port", p.CommandPort},
		Param{"drone_port", p.DronePort},
		Param{"data_port", p.DataPort},
		Param{"video_port", p.VideoPort},
	)
}

// LocalizationParams configures vloc_main. The int fields are 0/1 flags,
// which is how the node declares them.
type LocalizationParams struct {
	// UseSimTime makes the node follow /clock when it is published.
	UseSimTime bool `yaml:"use_sim_time"`
	// PublishTFs publishes drone and camera transforms.
	PublishTFs int `yaml:"psl_publish_tfs"`
	// StampMsgsWithCurrentTime stamps output with now() instead of the
	// incoming message time.
	StampMsgsWithCurrentTime           int     `yaml:"stamp_msgs_with_current_time"`
	MapInitPoseZ                       float64 `yaml:"map_init_pose_z"`
	BaseOdometryPubTopic               string  `yaml:"psl_base_odometry_pub_topic"`
	SubCameraInfoBestEffortNotReliable int     `yaml:"psl_sub_camera_info_best_effort_not_reliable"`
	PublishImageMarked                 int     `yaml:"psl_publish_image_marked"`
}

func (p LocalizationParams) ParameterSet() ParameterSet {
	return mustParameterSet(LocalizationParamNames,
		Param{"use_sim_time", p.UseSimTime},
		Param{"psl_publish_tfs", p.PublishTFs},
		Param{"stamp_msgs_with_current_time", p.StampMsgsWithCurrentTime},
		Param{"map_init_pose_z", p.MapInitPoseZ},
		Param{"psl_base_odometry_pub_topic", p.BaseOdometryPubTopic},
		Param{"psl_sub_camera_info_best_effort_not_reliable", p.SubCameraInfoBestEffortNotReliable},
		Param{"psl_publish_image_marked", p.PublishImageMarked},
	)
}

// MappingParams configures vmap_main.
type MappingParams struct {
	UseSimTime bool `yaml:"use_sim_time"`
	// PublishTFs publishes marker transforms.
	PublishTFs int `yaml:"psm_publish_tfs"`
	// MarkerLength is the printed marker edge length in meters.
	MarkerLength float64 `yaml:"map_marker_length"`
	// LoadFilename is a pre-built map loaded at start-up.
	LoadFilename string `yaml:"map_load_filename"`
}

func (p MappingParams) ParameterSet() ParameterSet {
	return mustParameterSet(MappingParamNames,
		Param{"use_sim_time", p.UseSimTime},
		Param{"psm_publish_tfs", p.PublishTFs},
		Param{"map_marker_length", p.MarkerLength},
		Param{"map_load_filename", p.LoadFilename},
	)
}
