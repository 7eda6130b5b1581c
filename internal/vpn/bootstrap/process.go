package bootstrap

import (
	"os/exec"
	"syscall"
)

// spawnDetached starts name with args as a session leader detached from this
// process, so it survives the gateway restarting (Hysteria2 has no built-in
// daemon mode of its own).
func spawnDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd.Start()
}
