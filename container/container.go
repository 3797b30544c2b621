// Package container implements the container lifecycle engine: creation
// (the rootless fork/namespace-bootstrap dance), start verification, kill,
// delete, and status queries. It is the integration point that drives the
// cgroup, rootfs, and state packages.
package container

import (
	"fmt"
	"path/filepath"
	"regexp"
	"syscall"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	cerrors "bento/errors"
	"bento/state"
)

// idPattern matches a valid container identifier: alphanumeric with
// dashes/underscores/dots, never a path component like "." or "..".
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateID checks that id is non-empty, well-formed, and cannot be used
// to escape the state directory or cgroup leaf naming.
func ValidateID(id string) error {
	if id == "" {
		return cerrors.Wrap(cerrors.ErrEmptyContainerID, cerrors.ErrConfigInvalid, "validate id")
	}
	if len(id) > 255 {
		return cerrors.WrapWithDetail(nil, cerrors.ErrConfigInvalid, "validate id", "id exceeds 255 characters")
	}
	if !idPattern.MatchString(id) || filepath.Clean(id) != id {
		return cerrors.WrapWithDetail(cerrors.ErrPathTraversal, cerrors.ErrConfigInvalid, "validate id",
			fmt.Sprintf("%q is not a valid container id", id))
	}
	return nil
}

// Container is a handle on one container's persisted record plus the
// runtime context (state store, bundle config) needed to act on it.
type Container struct {
	store  *state.Store
	Record *state.Record
	Config *specs.Spec
}

// Load loads an existing container's record and config snapshot.
func Load(store *state.Store, id string) (*Container, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	rec, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	return &Container{store: store, Record: rec, Config: rec.ConfigSnapshot}, nil
}

// List enumerates every container record, reconciling liveness for each
// (section 4.6's list operation).
func List(store *state.Store) ([]*Container, []string, error) {
	records, corrupt, err := store.List()
	if err != nil {
		return nil, nil, err
	}

	containers := make([]*Container, 0, len(records))
	for _, rec := range records {
		c := &Container{store: store, Record: rec, Config: rec.ConfigSnapshot}
		c.ReconcileLiveness()
		containers = append(containers, c)
	}
	return containers, corrupt, nil
}

// IsAlive reports whether the record's pid refers to a live process, via
// kill(pid, 0).
func (c *Container) IsAlive() bool {
	if c.Record.Pid <= 0 {
		return false
	}
	return syscall.Kill(c.Record.Pid, 0) == nil
}

// ReconcileLiveness downgrades a created/running record whose pid has died
// to stopped, persisting the change (section 4.6's lazy reconciliation).
func (c *Container) ReconcileLiveness() {
	if c.Record.Status != state.StatusCreated && c.Record.Status != state.StatusRunning {
		return
	}
	if c.IsAlive() {
		return
	}
	c.Record.Status = state.StatusStopped
	c.store.Save(c.Record)
}

// Signal sends sig to the container's init process.
func (c *Container) Signal(sig syscall.Signal) error {
	if c.Record.Pid <= 0 {
		return cerrors.WrapWithContainer(nil, cerrors.ErrInternal, "signal", c.Record.ID)
	}
	if err := syscall.Kill(c.Record.Pid, sig); err != nil {
		return cerrors.WrapWithContainer(err, cerrors.ErrInternal, "signal", c.Record.ID)
	}
	return nil
}

// SignalAll sends sig to every process in the init process's process
// group, not just the init pid, by signaling the init process's negative
// pid. Processes that left that group are not signaled. Used by
// `kill --all`.
func (c *Container) SignalAll(sig syscall.Signal) error {
	if c.Record.Pid <= 0 {
		return cerrors.WrapWithContainer(nil, cerrors.ErrInternal, "signal all", c.Record.ID)
	}
	if err := syscall.Kill(-c.Record.Pid, sig); err != nil {
		return cerrors.WrapWithContainer(err, cerrors.ErrInternal, "signal all", c.Record.ID)
	}
	return nil
}

// Save persists the container's current record.
func (c *Container) Save() error {
	return c.store.Save(c.Record)
}
