// Package ociconfig loads and validates the bundle configuration that
// drives container creation.
//
// Bento consumes the subset of the OCI Runtime Specification's config.json
// that spec section 4.1 names: process.args/env/cwd, root.path/readonly,
// mounts[], hostname, linux.namespaces[], and linux.{uid,gid}Mappings.
// The init process additionally applies process.user and
// linux.{masked,readonly}Paths. Everything else in the document
// round-trips through specs.Spec (the canonical OCI types) but is not
// interpreted.
package ociconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	cerrors "bento/errors"
)

// ConfigFileName is the bundle-relative path to the OCI runtime config.
const ConfigFileName = "config.json"

// RootfsDirName is the bundle-relative default rootfs directory name.
const RootfsDirName = "rootfs"

// Load reads and validates <bundle>/config.json.
func Load(bundle string) (*specs.Spec, error) {
	path := filepath.Join(bundle, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.WrapWithDetail(err, cerrors.ErrConfigInvalid, "load config",
				fmt.Sprintf("%s not found", path))
		}
		return nil, cerrors.Wrap(err, cerrors.ErrConfigInvalid, "read config")
	}

	var s specs.Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrConfigInvalid, "parse config", "malformed config.json")
	}

	if err := Validate(&s, bundle); err != nil {
		return nil, err
	}

	return &s, nil
}

// Validate checks the fields the core interprets are present and coherent.
// It fails with ErrConfigInvalid when process.args is absent/empty or when
// root.path cannot be resolved.
func Validate(s *specs.Spec, bundle string) error {
	if s.Process == nil || len(s.Process.Args) == 0 {
		return cerrors.WrapWithDetail(nil, cerrors.ErrConfigInvalid, "validate config", "process.args is empty")
	}

	if s.Root == nil || s.Root.Path == "" {
		return cerrors.WrapWithDetail(nil, cerrors.ErrConfigInvalid, "validate config", "root.path is empty")
	}

	rootfs := ResolveRootfs(s, bundle)
	if _, err := os.Stat(rootfs); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrConfigInvalid, "validate config",
			fmt.Sprintf("rootfs %s not found", rootfs))
	}

	return nil
}

// ResolveRootfs returns the absolute rootfs path for s, resolved against
// bundle when root.path is relative (the common case).
func ResolveRootfs(s *specs.Spec, bundle string) string {
	path := s.Root.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(bundle, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
