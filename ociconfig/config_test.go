package ociconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func writeBundle(t *testing.T, s *specs.Spec) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "rootfs"), 0o755); err != nil {
		t.Fatalf("mkdir rootfs: %v", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func baseSpec() *specs.Spec {
	return &specs.Spec{
		Version: specs.Version,
		Process: &specs.Process{Args: []string{"/bin/sh"}},
		Root:    &specs.Root{Path: "rootfs"},
	}
}

func TestLoadValid(t *testing.T) {
	dir := writeBundle(t, baseSpec())

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(s.Process.Args) != 1 || s.Process.Args[0] != "/bin/sh" {
		t.Errorf("unexpected process.args: %v", s.Process.Args)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for missing config.json")
	}
}

func TestValidateMissingProcessArgs(t *testing.T) {
	s := baseSpec()
	s.Process.Args = nil
	dir := writeBundle(t, s)

	if err := Validate(s, dir); err == nil {
		t.Fatal("expected error for empty process.args")
	}
}

func TestValidateMissingRoot(t *testing.T) {
	s := baseSpec()
	s.Root = nil
	dir := t.TempDir()

	if err := Validate(s, dir); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestValidateMissingRootfsDir(t *testing.T) {
	s := baseSpec()
	dir := t.TempDir() // rootfs/ never created
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Validate(s, dir); err == nil {
		t.Fatal("expected error when rootfs directory is absent")
	}
}

func TestResolveRootfsRelative(t *testing.T) {
	s := baseSpec()
	got := ResolveRootfs(s, "/bundles/c1")
	want := "/bundles/c1/rootfs"
	if got != want {
		t.Errorf("ResolveRootfs() = %q, want %q", got, want)
	}
}

func TestResolveRootfsAbsolute(t *testing.T) {
	s := baseSpec()
	s.Root.Path = "/var/lib/bento/rootfs"
	got := ResolveRootfs(s, "/bundles/c1")
	if got != "/var/lib/bento/rootfs" {
		t.Errorf("ResolveRootfs() = %q, want absolute path preserved", got)
	}
}
