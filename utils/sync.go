// Package utils provides small helpers shared across the runtime.
package utils

import (
	"fmt"
	"os"
)

// SyncPipe is the one-byte parent/child handshake used to release the
// re-exec'd init process only once the parent has finished writing its
// UID/GID maps and joining it to a cgroup.
type SyncPipe struct {
	parent *os.File
	child  *os.File
}

// NewSyncPipe opens a fresh pipe and wraps both ends.
func NewSyncPipe() (*SyncPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	return &SyncPipe{parent: w, child: r}, nil
}

// ChildFile returns the read end, meant to be inherited by the forked
// child via ExtraFiles.
func (s *SyncPipe) ChildFile() *os.File {
	return s.child
}

// ChildEnd wraps an inherited file descriptor as the child side of a
// SyncPipe, for the re-exec'd process that only has the fd number passed
// down via the environment, not the original *SyncPipe value.
func ChildEnd(f *os.File) *SyncPipe {
	return &SyncPipe{child: f}
}

// CloseChild closes the read end: in the parent, its own copy once the
// child has inherited it (the parent never reads from the pipe); in the
// child (via ChildEnd), its end once Wait has returned.
func (s *SyncPipe) CloseChild() error {
	return s.child.Close()
}

// Release writes the single byte that unblocks the waiting child, then
// closes the write end.
func (s *SyncPipe) Release() error {
	_, err := s.parent.Write([]byte{0})
	s.parent.Close()
	return err
}

// Close closes the write end without releasing the child, for error paths
// where the child is being killed rather than allowed to proceed.
func (s *SyncPipe) Close() error {
	return s.parent.Close()
}

// Wait blocks until the parent end has written the release byte (or
// closed, which read() also reports).
func (s *SyncPipe) Wait() error {
	buf := make([]byte, 1)
	_, err := s.child.Read(buf)
	return err
}
