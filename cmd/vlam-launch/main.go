// vlam-launch - Start the fiducial_vlam Tello stack
//
// Usage:
//
//	vlam-launch                    Launch rviz2, the driver, vloc and vmap
//	vlam-launch up                 Same as above
//	vlam-launch describe           Print what would be launched as YAML
//	vlam-launch paths              Print the map and rviz config paths
//	vlam-launch status [launch_id] Show launches (systemd backend)
//	vlam-launch stop <launch_id>   Stop a detached launch
package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/ptrmu/fiducial-vlam-fg/internal/backend"
)

const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// Global flags
var (
	backendFlag    string
	logLevelFlag   string
	shareDirFlag   string
	runtimeDirFlag string
	detachFlag     bool
	checkFlag      bool
)

func main() {
	flag.StringVar(&backendFlag, "backend", os.Getenv("VLAM_BACKEND"), "Backend: "+strings.Join(backend.Choices(), ", ")+" (overrides VLAM_BACKEND)")
	flag.StringVar(&logLevelFlag, "log-level", envOr("VLAM_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.StringVar(&shareDirFlag, "share-dir", "", "Use this directory as the fiducial_vlam share dir instead of the ament index")
	flag.StringVar(&runtimeDirFlag, "runtime-dir", "", "Directory for parameter files and logs (default $XDG_RUNTIME_DIR/vlam-launch)")
	flag.BoolVarP(&detachFlag, "detach", "d", false, "Start and return; processes log to the journal (systemd only)")
	flag.BoolVar(&checkFlag, "check", false, "describe: also write and re-read the parameter files")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `vlam-launch - Start the fiducial_vlam Tello stack

Usage:
  vlam-launch [flags] [up]            Launch rviz2, tello_driver_main, vloc_main, vmap_main
  vlam-launch describe [--check]      Print the launch description as YAML
  vlam-launch paths                   Print the map and rviz config paths
  vlam-launch status [launch_id]      Show launches and their processes
  vlam-launch stop <launch_id>        Stop a launch

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := setupLogging(logLevelFlag); err != nil {
		usage("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		os.Exit(cmdUp())
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "up":
		os.Exit(cmdUp())
	case "describe":
		cmdDescribe()
	case "paths":
		cmdPaths()
	case "status":
		if len(cmdArgs) > 1 {
			usage("usage: vlam-launch status [launch_id]")
		}
		id := ""
		if len(cmdArgs) == 1 {
			id = cmdArgs[0]
		}
		cmdStatus(id)
	case "stop":
		if len(cmdArgs) != 1 {
			usage("usage: vlam-launch stop <launch_id>")
		}
		cmdStop(cmdArgs[0])
	default:
		usage("unknown command: %s", cmd)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(exitError)
}

func usage(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	flag.Usage()
	os.Exit(exitUsage)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
