package container

import (
	"os"
	"path/filepath"

	"bento/cgroup"
	"bento/state"
)

// Delete tears down a container: kills it if still alive (this runtime
// follows the reference behavior of killing-then-deleting silently rather
// than refusing with Busy), destroys its cgroup leaf, removes its
// workspace directory, and deletes the state record. When the record is
// already missing, Delete still attempts to clean up any orphaned cgroup
// or workspace at the expected paths before returning NotFound.
func Delete(store *state.Store, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	c, err := Load(store, id)
	if err != nil {
		cleanupOrphans(store, id)
		return err
	}

	if c.IsAlive() {
		if killErr := c.Kill(); killErr != nil {
			return killErr
		}
	}

	if c.Record.CgroupPath != "" {
		mgr := cgroup.FromPath(c.Record.CgroupPath)
		if destroyErr := mgr.Destroy(); destroyErr != nil {
			return destroyErr
		}
	}

	if c.Record.WorkspacePath != "" {
		os.RemoveAll(filepath.Dir(c.Record.WorkspacePath))
	}

	return store.Delete(id)
}

// cleanupOrphans removes any cgroup leaf or workspace directory left at the
// conventional path for id, even though its state record is gone.
func cleanupOrphans(store *state.Store, id string) {
	if base, err := cgroup.DiscoverBase(); err == nil {
		cgroup.FromPath(filepath.Join(base, id)).Destroy()
	}
	os.RemoveAll(filepath.Join(store.WorkDir(), id))
}
