package container

import (
	"syscall"

	"bento/state"
)

// Kill sends SIGKILL to the init process and reaps it, transitioning the
// record to stopped. A container already stopped is a no-op success
// (section 4.6).
func (c *Container) Kill() error {
	return c.killWith(c.Signal)
}

// KillAll sends SIGKILL to every process in the container rather than just
// the init pid (the `kill --all` supplement), by signaling the init
// process's negative pid, i.e. its process group.
func (c *Container) KillAll() error {
	return c.killWith(c.SignalAll)
}

func (c *Container) killWith(send func(syscall.Signal) error) error {
	if c.Record.Status == state.StatusStopped {
		return nil
	}

	if c.Record.Pid > 0 {
		send(syscall.SIGKILL)
		reap(c.Record.Pid)
	}

	c.Record.Status = state.StatusStopped
	return c.Save()
}

// reap performs a non-blocking wait for pid so it doesn't linger as a
// zombie when this process happens to still be its parent. Most of the
// time the container's parent is already init (this runtime never waits
// on the child after create returns), so ECHILD here is the common case.
func reap(pid int) {
	var ws syscall.WaitStatus
	syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
}
