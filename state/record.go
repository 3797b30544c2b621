// Package state implements the on-disk container state store (spec
// section 4.4): one JSON file per container, written atomically via a
// tempfile-then-rename so a crash mid-write never leaves a torn record
// for the next invocation to trip over.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	cerrors "bento/errors"
)

// Status is the lifecycle phase of a container (spec section 3).
type Status string

const (
	// StatusCreating marks a record materialized before namespace bootstrap
	// completes; never observed by a caller once Create returns.
	StatusCreating Status = "creating"
	// StatusCreated marks a container whose init process has execed
	// process.args[0] but whose liveness has not yet been confirmed by start.
	StatusCreated Status = "created"
	// StatusRunning marks a container confirmed alive by start or a
	// liveness reconciliation.
	StatusRunning Status = "running"
	// StatusStopped marks a container whose init process has exited.
	StatusStopped Status = "stopped"
)

// fileSuffix is the on-disk extension for a container state file.
const fileSuffix = ".state"

// Record is the persisted container state record (spec section 3).
type Record struct {
	// ID is the container identifier.
	ID string `json:"id"`
	// BundlePath is the absolute path to the bundle directory.
	BundlePath string `json:"bundle_path"`
	// Status is the current lifecycle phase.
	Status Status `json:"status"`
	// Pid is the OS process id of the container init, or 0 when never
	// started. It is not cleared when the container stops: a stopped
	// record keeps the pid its init last had.
	Pid int `json:"pid,omitempty"`
	// CreatedAt is when the record was first materialized.
	CreatedAt time.Time `json:"created_at"`
	// CgroupPath is the absolute cgroup leaf directory, or "" when the
	// container was created with --no-cgroups.
	CgroupPath string `json:"cgroup_path,omitempty"`
	// WorkspacePath is the runtime-owned rootfs workspace directory, or ""
	// when the population policy is "manual".
	WorkspacePath string `json:"workspace_path,omitempty"`
	// ConfigSnapshot is the resolved OCI config at creation time. It is
	// frozen here and never re-read from the bundle afterward (spec
	// section 9's open question resolved toward the safer option).
	ConfigSnapshot *specs.Spec `json:"config_snapshot,omitempty"`
}

// Store manages container state records under root.
type Store struct {
	root string
}

// NewStore returns a Store rooted at root. When root is empty, it resolves
// $XDG_STATE_HOME/bento or $HOME/.local/state/bento (spec section 4.4/6).
func NewStore(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrStateWriteFailed, "create state root")
	}
	return &Store{root: root}, nil
}

// DefaultRoot resolves the default state directory per spec section 6.
func DefaultRoot() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "bento")
	}
	home := os.Getenv("HOME")
	return filepath.Join(home, ".local", "state", "bento")
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// WorkDir returns the runtime workspace root (spec section 6).
func (s *Store) WorkDir() string {
	return filepath.Join(s.root, "work")
}

func (s *Store) path(id string) string {
	return filepath.Join(s.root, id+fileSuffix)
}

// Create materializes a new record for id. It fails with ErrIdAlreadyExists
// if a record already exists, using O_CREAT|O_EXCL so concurrent invocations
// racing to create the same id have exactly one winner (spec section 5).
func (s *Store) Create(id, bundlePath string) (*Record, error) {
	path := s.path(id)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, cerrors.WrapWithContainer(err, cerrors.ErrIdAlreadyExists, "create", id)
		}
		return nil, cerrors.WrapWithContainer(err, cerrors.ErrStateWriteFailed, "create", id)
	}
	f.Close()

	rec := &Record{
		ID:         id,
		BundlePath: bundlePath,
		Status:     StatusCreating,
		CreatedAt:  time.Now(),
	}
	if err := s.Save(rec); err != nil {
		os.Remove(path)
		return nil, err
	}
	return rec, nil
}

// Save atomically persists rec: the new content is written to a sibling
// tempfile and then renamed over the record's file, so readers never
// observe a partially written record (spec section 4.4).
func (s *Store) Save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return cerrors.WrapWithContainer(err, cerrors.ErrStateWriteFailed, "marshal", rec.ID)
	}

	path := s.path(rec.ID)
	tmpPath := filepath.Join(s.root, "."+rec.ID+"-"+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return cerrors.WrapWithContainer(err, cerrors.ErrStateWriteFailed, "write tempfile", rec.ID)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return cerrors.WrapWithContainer(err, cerrors.ErrStateWriteFailed, "rename", rec.ID)
	}

	return nil
}

// Load reads the record for id. A missing file yields ErrStateNotFound; a
// file that fails to parse yields ErrStateCorrupt (and is left on disk,
// per spec section 4.4 — corrupt records are reported, not auto-deleted).
func (s *Store) Load(id string) (*Record, error) {
	path := s.path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.WrapWithContainer(err, cerrors.ErrStateNotFound, "load", id)
		}
		return nil, cerrors.WrapWithContainer(err, cerrors.ErrStateWriteFailed, "load", id)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, cerrors.WrapWithContainer(err, cerrors.ErrStateCorrupt, "parse", id)
	}
	return &rec, nil
}

// List enumerates every record in the store. Corrupt entries are returned
// in the corrupt slice rather than silently dropped or auto-deleted.
func (s *Store) List() (records []*Record, corrupt []string, err error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, cerrors.Wrap(err, cerrors.ErrStateWriteFailed, "list")
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), fileSuffix)

		rec, loadErr := s.Load(id)
		if loadErr != nil {
			if cerrors.IsKind(loadErr, cerrors.ErrStateCorrupt) {
				corrupt = append(corrupt, id)
			}
			continue
		}
		records = append(records, rec)
	}

	return records, corrupt, nil
}

// Delete removes the state file for id. A missing file is not an error.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return cerrors.WrapWithContainer(err, cerrors.ErrStateWriteFailed, "delete", id)
	}
	return nil
}
