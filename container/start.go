package container

import (
	"bento/state"
)

// Start is verify-only: Bento execs process.args[0] during Create itself
// (section 4.5's collapsed create/start model), so start's job is to
// confirm the init process is still alive and transition created->running,
// or to recognize it already exited (a non-interactive command with no
// stdin attached commonly does) and transition to stopped. Either outcome
// is success.
func (c *Container) Start() error {
	if c.Record.Status != state.StatusCreated && c.Record.Status != state.StatusRunning {
		return nil
	}

	if c.IsAlive() {
		c.Record.Status = state.StatusRunning
	} else {
		c.Record.Status = state.StatusStopped
	}
	return c.Save()
}
