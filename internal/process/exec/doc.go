// Package exec provides a portable ProcessBackend backed by plain OS
// processes (os/exec).
//
// Each process runs in its own process group so a stop reaches anything
// it forked. Processes do not outlive the Backend: Close kills whatever
// is still running.
package exec
