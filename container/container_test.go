package container

import (
	"os"
	"testing"

	"bento/state"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"c1", false},
		{"my-container_1.0", false},
		{"", true},
		{".", true},
		{"..", true},
		{"../etc", true},
		{"a/b", true},
	}
	for _, tc := range tests {
		err := ValidateID(tc.id)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateID(%q) error = %v, wantErr %v", tc.id, err, tc.wantErr)
		}
	}
}

func newTestContainer(t *testing.T, status state.Status, pid int) (*Container, *state.Store) {
	t.Helper()
	store, err := state.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	rec, err := store.Create("c1", "/bundles/c1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rec.Status = status
	rec.Pid = pid
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return &Container{store: store, Record: rec}, store
}

func TestIsAliveSelfPid(t *testing.T) {
	c, _ := newTestContainer(t, state.StatusRunning, os.Getpid())
	if !c.IsAlive() {
		t.Error("expected the current process to be reported alive")
	}
}

func TestIsAliveZeroPid(t *testing.T) {
	c, _ := newTestContainer(t, state.StatusCreated, 0)
	if c.IsAlive() {
		t.Error("expected pid 0 to be reported dead")
	}
}

func TestReconcileLivenessDowngradesDeadProcess(t *testing.T) {
	// Pid 99999999 is virtually guaranteed not to exist.
	c, store := newTestContainer(t, state.StatusRunning, 99999999)
	c.ReconcileLiveness()

	if c.Record.Status != state.StatusStopped {
		t.Errorf("Status = %v, want stopped", c.Record.Status)
	}

	reloaded, err := store.Load("c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.Status != state.StatusStopped {
		t.Errorf("persisted Status = %v, want stopped", reloaded.Status)
	}
}

func TestReconcileLivenessLeavesStoppedAlone(t *testing.T) {
	c, _ := newTestContainer(t, state.StatusStopped, 0)
	c.ReconcileLiveness()
	if c.Record.Status != state.StatusStopped {
		t.Errorf("Status = %v, want unchanged stopped", c.Record.Status)
	}
}

func TestStartTransitionsToRunningWhenAlive(t *testing.T) {
	c, _ := newTestContainer(t, state.StatusCreated, os.Getpid())
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.Record.Status != state.StatusRunning {
		t.Errorf("Status = %v, want running", c.Record.Status)
	}
}

func TestStartTransitionsToStoppedWhenDead(t *testing.T) {
	c, _ := newTestContainer(t, state.StatusCreated, 99999999)
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.Record.Status != state.StatusStopped {
		t.Errorf("Status = %v, want stopped", c.Record.Status)
	}
}

func TestKillAlreadyStoppedIsNoop(t *testing.T) {
	c, _ := newTestContainer(t, state.StatusStopped, 0)
	if err := c.Kill(); err != nil {
		t.Errorf("Kill() on stopped container should succeed, got %v", err)
	}
}

func TestKillAllAlreadyStoppedIsNoop(t *testing.T) {
	c, _ := newTestContainer(t, state.StatusStopped, 0)
	if err := c.KillAll(); err != nil {
		t.Errorf("KillAll() on stopped container should succeed, got %v", err)
	}
}

func TestCollectStatsNoCgroupPath(t *testing.T) {
	c, _ := newTestContainer(t, state.StatusRunning, os.Getpid())
	stats := c.CollectStats()
	if stats.HasCgroup {
		t.Error("expected HasCgroup false when no cgroup_path recorded")
	}
}

func TestLoadMissingContainer(t *testing.T) {
	store, err := state.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err := Load(store, "missing"); err == nil {
		t.Fatal("expected error loading a nonexistent container")
	}
}

func TestListReconcilesDeadProcess(t *testing.T) {
	c, store := newTestContainer(t, state.StatusRunning, 99999999)
	_ = c

	containers, _, err := List(store)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(containers) != 1 {
		t.Fatalf("List() returned %d containers, want 1", len(containers))
	}
	if containers[0].Record.Status != state.StatusStopped {
		t.Errorf("expected dead-pid record to be reconciled to stopped, got %v", containers[0].Record.Status)
	}
}
