// Package errors provides typed error handling for the Bento container runtime.
//
// It defines the error taxonomy a rootless, daemonless runtime needs to
// surface across separate CLI invocations: every error carries a Kind so
// callers (and the CLI diagnostic line) can classify a failure without
// string matching. All errors support errors.Is/errors.As.
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a runtime error.
type ErrorKind int

const (
	// ErrConfigInvalid indicates a missing or malformed bundle config.
	ErrConfigInvalid ErrorKind = iota
	// ErrStateNotFound indicates the referenced container has no state record.
	ErrStateNotFound
	// ErrStateCorrupt indicates a state record failed to parse.
	ErrStateCorrupt
	// ErrStateWriteFailed indicates the state store could not persist a record.
	ErrStateWriteFailed
	// ErrIdAlreadyExists indicates the container id is already in use.
	ErrIdAlreadyExists
	// ErrNamespaceDenied indicates the kernel rejected a namespace creation.
	ErrNamespaceDenied
	// ErrIdMapFailed indicates UID/GID map installation was blocked.
	ErrIdMapFailed
	// ErrCgroupUnavailable indicates no delegated cgroup subtree could be found.
	ErrCgroupUnavailable
	// ErrCgroupControllerMissing indicates a requested controller isn't delegated.
	ErrCgroupControllerMissing
	// ErrLimitApplyFailed indicates a resource limit write failed.
	ErrLimitApplyFailed
	// ErrCgroupBusy indicates cgroup teardown could not evict all processes in time.
	ErrCgroupBusy
	// ErrRootfsPrepareFailed indicates rootfs population failed.
	ErrRootfsPrepareFailed
	// ErrPivotFailed indicates pivot_root (and the chroot fallback) both failed.
	ErrPivotFailed
	// ErrMountFailed indicates a mount syscall failed.
	ErrMountFailed
	// ErrExecFailed indicates the child could not start process.args[0].
	ErrExecFailed
	// ErrBusy indicates delete was attempted against a running container
	// without permission to kill it first.
	ErrBusy
	// ErrInternal is a catch-all for unclassified failures.
	ErrInternal
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrConfigInvalid:
		return "invalid config"
	case ErrStateNotFound:
		return "state not found"
	case ErrStateCorrupt:
		return "state corrupt"
	case ErrStateWriteFailed:
		return "state write failed"
	case ErrIdAlreadyExists:
		return "id already exists"
	case ErrNamespaceDenied:
		return "namespace denied"
	case ErrIdMapFailed:
		return "id map failed"
	case ErrCgroupUnavailable:
		return "cgroup unavailable"
	case ErrCgroupControllerMissing:
		return "cgroup controller missing"
	case ErrLimitApplyFailed:
		return "limit apply failed"
	case ErrCgroupBusy:
		return "cgroup busy"
	case ErrRootfsPrepareFailed:
		return "rootfs prepare failed"
	case ErrPivotFailed:
		return "pivot failed"
	case ErrMountFailed:
		return "mount failed"
	case ErrExecFailed:
		return "exec failed"
	case ErrBusy:
		return "busy"
	case ErrInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// RuntimeError is the error type returned across the runtime's phase
// boundaries (config load, namespace bootstrap, cgroup setup, rootfs
// preparation, state persistence).
type RuntimeError struct {
	// Op is the operation/phase that failed (e.g. "create", "cgroup.apply").
	Op string
	// Container is the container id, if applicable.
	Container string
	// Kind classifies the failure.
	Kind ErrorKind
	// Detail is additional human-readable context.
	Detail string
	// Err is the underlying error, if any.
	Err error
}

// Error implements error.
func (e *RuntimeError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Container != "" {
		msg = fmt.Sprintf("container %s: ", e.Container)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target matches this error's kind.
func (e *RuntimeError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*RuntimeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a RuntimeError with no underlying cause.
func New(kind ErrorKind, op, detail string) *RuntimeError {
	return &RuntimeError{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps err with a kind and the phase that produced it.
func Wrap(err error, kind ErrorKind, op string) *RuntimeError {
	return &RuntimeError{Op: op, Kind: kind, Err: err}
}

// WrapWithContainer wraps err with a kind, phase, and container id.
func WrapWithContainer(err error, kind ErrorKind, op, containerID string) *RuntimeError {
	return &RuntimeError{Op: op, Container: containerID, Kind: kind, Err: err}
}

// WrapWithDetail wraps err with a kind, phase, and extra detail.
func WrapWithDetail(err error, kind ErrorKind, op, detail string) *RuntimeError {
	return &RuntimeError{Op: op, Kind: kind, Detail: detail, Err: err}
}

// IsKind reports whether err is a *RuntimeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		return rerr.Kind == kind
	}
	return false
}

// GetKind returns the kind of err, if it is a *RuntimeError.
func GetKind(err error) (ErrorKind, bool) {
	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		return rerr.Kind, true
	}
	return 0, false
}

// Re-exported for convenience so callers need only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
