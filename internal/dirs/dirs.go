// Package dirs resolves where vlam-launch keeps per-launch files.
// It follows XDG base directories with fallbacks for platforms where
// XDG isn't fully supported (e.g., macOS).
package dirs

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
)

const appName = "vlam-launch"

// RuntimeDir returns the directory for ephemeral runtime data: generated
// parameter files and process logs, one subdirectory per launch.
// Priority: $VLAM_RUNTIME_DIR > best available runtime dir > $TMPDIR/vlam-launch-$USER
func RuntimeDir() string {
	if v := os.Getenv("VLAM_RUNTIME_DIR"); v != "" {
		return v
	}

	if base := findRuntimeBase(); base != "" {
		return filepath.Join(base, appName)
	}

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return filepath.Join(os.TempDir(), appName+"-"+username)
}

// LaunchDir returns the directory holding the files of one launch.
func LaunchDir(runtimeDir, launchID string) string {
	return filepath.Join(runtimeDir, launchID)
}

// findRuntimeBase finds the best available runtime directory base.
// On Linux this is typically /run/user/$UID.
func findRuntimeBase() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}

	currentUser, err := user.Current()
	if err != nil {
		return ""
	}

	candidates := []string{
		filepath.Join("/run/user", currentUser.Uid),
		filepath.Join("/var/run/user", currentUser.Uid),
	}
	if runtime.GOOS == "freebsd" {
		candidates = append([]string{
			filepath.Join("/var/run/xdg", currentUser.Username),
		}, candidates...)
	}

	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
