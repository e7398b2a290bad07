//go:build !windows

// Package process stops browser processes started for PDF export.
package process

import "syscall"

// KillTree sends SIGKILL to the process group led by pid. Chrome spawns
// renderer and GPU helpers in the same group; killing only the parent
// leaves them behind. Non-positive PIDs are ignored.
func KillTree(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
