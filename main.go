// Bento is a rootless, daemonless OCI-compliant container runtime.
//
// It forks its own init process into fresh Linux namespaces, maps the
// invoking user to uid/gid 0 inside a user namespace, joins a delegated
// cgroup v2 subtree, prepares the container's rootfs, and execs the
// bundle's configured command. There is no background process: every
// command is a single short-lived invocation that reads or mutates a
// per-user state directory.
package main

import (
	"fmt"
	"os"

	"bento/cmd"
	"bento/container"
	cerrors "bento/errors"
)

func main() {
	// The re-exec'd init process is launched as `<self> __bento_init__`,
	// bypassing cobra entirely: RunInit never returns on success, and must
	// run before any flag parsing touches os.Args.
	if container.IsInitArg(os.Args[1:]) {
		container.RunInit()
		return
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bento: %v\n", err)
		// ErrStateNotFound gets its own exit code so scripts can tell "no
		// such container" apart from every other failure without parsing
		// the message text.
		if kind, ok := cerrors.GetKind(err); ok && kind == cerrors.ErrStateNotFound {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
