//go:build windows

package engineproc

import (
	"os/exec"
	"syscall"
)

// hideConsole prevents the spawned engine from attaching a visible console
// window on Windows.
func hideConsole(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
