//go:build !windows

package engineproc

import "os/exec"

// hideConsole is a no-op outside Windows; there is no console to hide.
func hideConsole(cmd *exec.Cmd) {}
