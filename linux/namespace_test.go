package linux

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestNamespaceFlagsAlwaysIncludesUser(t *testing.T) {
	flags := NamespaceFlags(nil)
	if flags&CLONE_NEWUSER == 0 {
		t.Error("expected CLONE_NEWUSER to always be present")
	}
}

func TestNamespaceFlagsOnlyNewNamespaces(t *testing.T) {
	namespaces := []specs.LinuxNamespace{
		{Type: specs.PIDNamespace},
		{Type: specs.NetworkNamespace, Path: "/var/run/netns/x"},
	}

	flags := NamespaceFlags(namespaces)
	if flags&CLONE_NEWPID == 0 {
		t.Error("expected CLONE_NEWPID to be set for a namespace with no path")
	}
	if flags&CLONE_NEWNET != 0 {
		t.Error("expected CLONE_NEWNET to be absent when a join path is given")
	}
}

func TestHasNamespace(t *testing.T) {
	namespaces := []specs.LinuxNamespace{{Type: specs.MountNamespace}}
	if !HasNamespace(namespaces, specs.MountNamespace) {
		t.Error("expected MountNamespace to be present")
	}
	if HasNamespace(namespaces, specs.IPCNamespace) {
		t.Error("expected IPCNamespace to be absent")
	}
}

func TestGetNamespacePath(t *testing.T) {
	namespaces := []specs.LinuxNamespace{
		{Type: specs.NetworkNamespace, Path: "/var/run/netns/x"},
		{Type: specs.PIDNamespace},
	}

	if got := GetNamespacePath(namespaces, specs.NetworkNamespace); got != "/var/run/netns/x" {
		t.Errorf("GetNamespacePath(net) = %q, want join path", got)
	}
	if got := GetNamespacePath(namespaces, specs.PIDNamespace); got != "" {
		t.Errorf("GetNamespacePath(pid) = %q, want empty (new namespace)", got)
	}
}

func TestBuildSysProcAttrSetsid(t *testing.T) {
	attr := BuildSysProcAttr(nil)
	if !attr.Setsid {
		t.Error("expected Setsid to be true")
	}
	if attr.Cloneflags&CLONE_NEWUSER == 0 {
		t.Error("expected Cloneflags to include CLONE_NEWUSER")
	}
}

func TestFormatIDMap(t *testing.T) {
	mappings := []specs.LinuxIDMapping{{ContainerID: 0, HostID: 1000, Size: 1}}
	got := formatIDMap(mappings)
	want := "0 1000 1\n"
	if got != want {
		t.Errorf("formatIDMap() = %q, want %q", got, want)
	}
}

func TestWriteDirectIDMap(t *testing.T) {
	// /proc/self is the only pid we can write to without real privileges,
	// and even that requires the kernel to allow it; skip if denied.
	pid := os.Getpid()
	mappings := []specs.LinuxIDMapping{{ContainerID: 0, HostID: uint32(os.Getuid()), Size: 1}}

	err := writeDirectIDMap(pid, "uid_map", mappings)
	if err != nil {
		t.Skipf("writing uid_map not permitted in this environment: %v", err)
	}

	data, readErr := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "uid_map"))
	if readErr != nil {
		t.Fatalf("read uid_map: %v", readErr)
	}
	if len(data) == 0 {
		t.Error("expected non-empty uid_map after write")
	}
}

func TestSetHostnameEmptyIsNoop(t *testing.T) {
	if err := SetHostname(""); err != nil {
		t.Errorf("SetHostname(\"\") should be a no-op, got %v", err)
	}
}
