package cgroup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	cerrors "bento/errors"
)

func int64p(v int64) *int64    { return &v }
func uint64p(v uint64) *uint64 { return &v }
func sizeBytes(v int64) *Size  { return &Size{Bytes: v} }
func sizeMax() *Size           { return &Size{IsMax: true} }

func TestApplyWritesRequestedFiles(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{path: dir}

	_, err := m.Apply(Limits{
		MemoryLimit: sizeBytes(268435456),
		MemoryHigh:  sizeBytes(209715200),
		CPUQuota:    int64p(75000),
		CPUPeriod:   uint64p(100000),
		CPUWeight:   uint64p(200),
		PidsLimit:   int64p(200),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	tests := map[string]string{
		"memory.max":  "268435456",
		"memory.high": "209715200",
		"cpu.max":     "75000 100000",
		"cpu.weight":  "200",
		"pids.max":    "200",
	}
	for file, want := range tests {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			t.Errorf("read %s: %v", file, err)
			continue
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", file, data, want)
		}
	}
}

func TestApplyMemoryMaxWritesLiteralMax(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{path: dir}

	if _, err := m.Apply(Limits{MemoryLimit: sizeMax()}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "memory.max"))
	if err != nil {
		t.Fatalf("read memory.max: %v", err)
	}
	if string(data) != "max" {
		t.Errorf("memory.max = %q, want %q", data, "max")
	}
}

func TestApplyCPUMaxAbsentWhenNotRequested(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{path: dir}

	if _, err := m.Apply(Limits{CPUWeight: uint64p(100)}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// cpu.max not requested at all: no file should be written.
	if _, err := os.Stat(filepath.Join(dir, "cpu.max")); !os.IsNotExist(err) {
		t.Errorf("expected cpu.max to be absent when not requested")
	}
}

func TestApplySwapFailureIsWarningNotError(t *testing.T) {
	// Non-existent directory: every write fails. memory.swap.max alone must
	// demote to a warning rather than making Apply return an error.
	m := &Manager{path: filepath.Join(t.TempDir(), "does-not-exist")}

	warnings, err := m.Apply(Limits{MemorySwap: sizeBytes(1024)})
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil (swap failure is a warning)", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
}

func TestApplyMemoryFailureIsError(t *testing.T) {
	m := &Manager{path: filepath.Join(t.TempDir(), "does-not-exist")}

	_, err := m.Apply(Limits{MemoryLimit: sizeBytes(1024)})
	if !cerrors.IsKind(err, cerrors.ErrLimitApplyFailed) {
		t.Errorf("expected ErrLimitApplyFailed, got %v", err)
	}
}

func TestJoinWritesPid(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{path: dir}

	if err := m.Join(4242); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "cgroup.procs"))
	if err != nil {
		t.Fatalf("read cgroup.procs: %v", err)
	}
	if string(data) != "4242" {
		t.Errorf("cgroup.procs = %q, want %q", data, "4242")
	}
}

func TestReadStatsMissingFilesAreBlank(t *testing.T) {
	m := &Manager{path: t.TempDir()}
	stats := m.ReadStats()
	if stats.MemoryCurrent != 0 || stats.PidsCurrent != 0 || stats.CPUUsageUsec != 0 {
		t.Errorf("expected zero-value Stats for missing files, got %+v", stats)
	}
}

func TestReadStatsPopulated(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{path: dir}

	os.WriteFile(filepath.Join(dir, "memory.current"), []byte("1048576\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "pids.current"), []byte("3\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "cpu.stat"), []byte("usage_usec 500000\nuser_usec 400000\n"), 0o644)

	stats := m.ReadStats()
	if stats.MemoryCurrent != 1048576 {
		t.Errorf("MemoryCurrent = %d, want 1048576", stats.MemoryCurrent)
	}
	if stats.PidsCurrent != 3 {
		t.Errorf("PidsCurrent = %d, want 3", stats.PidsCurrent)
	}
	if stats.CPUUsageUsec != 500000 {
		t.Errorf("CPUUsageUsec = %d, want 500000", stats.CPUUsageUsec)
	}
}

func TestDestroyRemovesEmptyLeaf(t *testing.T) {
	parent := t.TempDir()
	leaf := filepath.Join(parent, "c1")
	if err := os.Mkdir(leaf, 0o755); err != nil {
		t.Fatalf("mkdir leaf: %v", err)
	}
	m := &Manager{path: leaf}

	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := os.Stat(leaf); !os.IsNotExist(err) {
		t.Errorf("expected leaf to be removed")
	}
}

func TestDestroyMissingLeafIsNotError(t *testing.T) {
	m := &Manager{path: filepath.Join(t.TempDir(), "never-existed")}
	if err := m.Destroy(); err != nil {
		t.Errorf("Destroy() on missing leaf should be a no-op, got %v", err)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    Size
		wantErr bool
	}{
		{"256M", Size{Bytes: 268435456}, false},
		{"200M", Size{Bytes: 209715200}, false},
		{"300000", Size{Bytes: 300000}, false},
		{"1G", Size{Bytes: 1073741824}, false},
		{"1K", Size{Bytes: 1024}, false},
		{"max", Size{IsMax: true}, false},
		{"", Size{}, true},
		{"abc", Size{}, true},
	}

	for _, tc := range tests {
		got, err := ParseSize(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSize(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSize(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSize(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestSizeStringRoundTrip(t *testing.T) {
	if got := sizeMax().String(); got != "max" {
		t.Errorf("Size{IsMax: true}.String() = %q, want %q", got, "max")
	}
	if got := sizeBytes(268435456).String(); got != "268435456" {
		t.Errorf("Size{Bytes: 268435456}.String() = %q, want %q", got, "268435456")
	}
}

func TestFreezeThawWriteCgroupFreeze(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{path: dir}

	if err := m.Freeze(); err != nil {
		t.Fatalf("Freeze() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "cgroup.freeze"))
	if err != nil {
		t.Fatalf("read cgroup.freeze: %v", err)
	}
	if string(data) != "1" {
		t.Errorf("cgroup.freeze after Freeze = %q, want %q", data, "1")
	}

	if err := m.Thaw(); err != nil {
		t.Fatalf("Thaw() error = %v", err)
	}
	data, err = os.ReadFile(filepath.Join(dir, "cgroup.freeze"))
	if err != nil {
		t.Fatalf("read cgroup.freeze: %v", err)
	}
	if string(data) != "0" {
		t.Errorf("cgroup.freeze after Thaw = %q, want %q", data, "0")
	}
}

func TestCPUPercentMissingFileIsError(t *testing.T) {
	m := &Manager{path: t.TempDir()}
	if _, err := m.CPUPercent(time.Millisecond); err == nil {
		t.Error("expected error when cpu.stat is absent")
	}
}

func TestDiscoverBaseFromProcSelfCgroup(t *testing.T) {
	// This only exercises the real /proc/self/cgroup on the host; skip if the
	// parsing assumption (hierarchy id "0" present) doesn't hold in this
	// sandboxed environment.
	base, err := DiscoverBase()
	if err != nil {
		t.Skipf("DiscoverBase() not available in this environment: %v", err)
	}
	if base == "" {
		t.Error("expected non-empty base path")
	}
}
