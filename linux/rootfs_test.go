package linux

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMountOptions(t *testing.T) {
	flags, data := parseMountOptions([]string{"ro", "nosuid", "size=64m"})
	if flags&MS_RDONLY == 0 {
		t.Error("expected MS_RDONLY to be set")
	}
	if flags&MS_NOSUID == 0 {
		t.Error("expected MS_NOSUID to be set")
	}
	if data != "size=64m" {
		t.Errorf("data = %q, want %q", data, "size=64m")
	}
}

func TestHasOption(t *testing.T) {
	if !hasOption([]string{"bind", "ro"}, "bind") {
		t.Error("expected bind to be present")
	}
	if hasOption([]string{"ro"}, "bind") {
		t.Error("expected bind to be absent")
	}
}

func TestPrepareWorkspaceManualReturnsBundleRootfs(t *testing.T) {
	got, err := PrepareWorkspace(PolicyManual, "/bundles/c1/rootfs", "/workspace/c1", false)
	if err != nil {
		t.Fatalf("PrepareWorkspace() error = %v", err)
	}
	if got != "/bundles/c1/rootfs" {
		t.Errorf("got %q, want bundle rootfs unchanged", got)
	}
}

func TestPrepareWorkspaceCopyClonesTree(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcDir, "etc"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "etc", "hostname"), []byte("c1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	workspace := filepath.Join(t.TempDir(), "workspace")
	got, err := PrepareWorkspace(PolicyCopy, srcDir, workspace, false)
	if err != nil {
		t.Fatalf("PrepareWorkspace() error = %v", err)
	}
	if got != workspace {
		t.Errorf("got %q, want workspace %q", got, workspace)
	}

	data, err := os.ReadFile(filepath.Join(workspace, "etc", "hostname"))
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(data) != "c1" {
		t.Errorf("copied content = %q, want %q", data, "c1")
	}
}

func TestPrepareWorkspaceUnknownPolicy(t *testing.T) {
	_, err := PrepareWorkspace("bogus", "/src", "/dst", false)
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestMaskPathMissingIsNoop(t *testing.T) {
	if err := MaskPath(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Errorf("expected no error for missing path, got %v", err)
	}
}

func TestReadonlyPathMissingIsNoop(t *testing.T) {
	if err := ReadonlyPath(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Errorf("expected no error for missing path, got %v", err)
	}
}
