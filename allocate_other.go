//go:build !linux

package cdpilot

import "os/exec"

func allocateCmdOptions(cmd *exec.Cmd) {}
