// Package all registers all built-in process backends.
//
// Import for side effects:
//
//	import _ "github.com/ptrmu/fiducial-vlam-fg/internal/backend/all"
package all

import (
	_ "github.com/ptrmu/fiducial-vlam-fg/internal/backend/exec"
	_ "github.com/ptrmu/fiducial-vlam-fg/internal/backend/systemd"
)
