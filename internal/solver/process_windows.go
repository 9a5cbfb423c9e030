//go:build windows

package solver

import (
	"os/exec"
)

func setupCommand(cmd *exec.Cmd) {}

// Windows has no process groups to signal; the solver itself is killed.
func terminateGroup(cmd *exec.Cmd) error {
	return killGroup(cmd)
}

func killGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
