package container

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	cerrors "bento/errors"
	"bento/linux"
	"bento/ociconfig"
	"bento/utils"
)

// initErrorExitCode is the distinctive exit status used when the init
// process fails anywhere between the parent's release and the final exec
// of process.args[0] (section 4.5 step 9), so the failure is distinguishable
// from the container's own command exiting non-zero.
const initErrorExitCode = 125

// IsInitArg reports whether args names the hidden re-exec entry point.
func IsInitArg(args []string) bool {
	return len(args) > 0 && args[0] == initArg
}

// RunInit is the child-side bootstrap. It is invoked by the re-exec'd
// process created in Create: read the environment left by the parent,
// block on the sync pipe until released, finish namespace setup, and exec
// the container's command. It does not return on success.
func RunInit() {
	bundle := os.Getenv(envBundle)
	rootfs := os.Getenv(envRootfs)
	fdStr := os.Getenv(envSyncFD)

	if bundle == "" || rootfs == "" || fdStr == "" {
		fatal(cerrors.New(cerrors.ErrInternal, "init", "missing init environment"))
	}

	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		fatal(cerrors.Wrap(err, cerrors.ErrInternal, "init: parse sync fd"))
	}
	syncPipe := utils.ChildEnd(os.NewFile(uintptr(fd), "sync"))

	// Block until the parent has finished writing our UID/GID maps and
	// joining us to the cgroup. Nothing before this point may depend on
	// capabilities granted by the user namespace mapping.
	if err := syncPipe.Wait(); err != nil {
		fatal(cerrors.Wrap(err, cerrors.ErrInternal, "init: wait for release"))
	}
	syncPipe.CloseChild()

	spec, err := ociconfig.Load(bundle)
	if err != nil {
		fatal(err)
	}

	if spec.Linux != nil {
		if err := linux.SetNamespaces(spec.Linux.Namespaces); err != nil {
			fatal(err)
		}
	}

	if spec.Hostname != "" {
		if err := linux.SetHostname(spec.Hostname); err != nil {
			fatal(cerrors.Wrap(err, cerrors.ErrNamespaceDenied, "init: set hostname"))
		}
	}

	// Host device fds must be opened while the host's /dev is still
	// reachable, before EnterRoot switches the mount namespace's root.
	hostDevices, err := linux.OpenHostDevices()
	if err != nil {
		fatal(err)
	}

	if err := linux.EnterRoot(rootfs); err != nil {
		fatal(err)
	}

	if err := linux.SetupConfigMounts(spec.Mounts); err != nil {
		fatal(err)
	}
	if err := linux.MountProc(); err != nil {
		fatal(err)
	}
	if err := linux.MountSys(); err != nil {
		fatal(err)
	}
	if err := linux.SetupDev(hostDevices); err != nil {
		fatal(err)
	}

	if spec.Root != nil && spec.Root.Readonly {
		if err := linux.RemountRootReadonly(); err != nil {
			fatal(err)
		}
	}

	if spec.Linux != nil {
		for _, path := range spec.Linux.MaskedPaths {
			if err := linux.MaskPath(path); err != nil {
				fmt.Fprintf(os.Stderr, "bento: init: warning: mask %s: %v\n", path, err)
			}
		}
		for _, path := range spec.Linux.ReadonlyPaths {
			if err := linux.ReadonlyPath(path); err != nil {
				fmt.Fprintf(os.Stderr, "bento: init: warning: readonly %s: %v\n", path, err)
			}
		}
	}

	if spec.Process == nil || len(spec.Process.Args) == 0 {
		fatal(cerrors.Wrap(cerrors.ErrNoProcessArgs, cerrors.ErrConfigInvalid, "init"))
	}

	if spec.Process.Cwd != "" {
		if err := os.Chdir(spec.Process.Cwd); err != nil {
			fatal(cerrors.WrapWithDetail(err, cerrors.ErrExecFailed, "init: chdir", spec.Process.Cwd))
		}
	}

	// Best effort: the kernel refuses this once /proc/<pid>/setgroups is
	// "deny" (as the direct gid_map write leaves it), so the result is
	// ignored.
	syscall.Setgroups(nil)

	if err := setUser(spec.Process.User); err != nil {
		fatal(err)
	}

	env := spec.Process.Env
	args := spec.Process.Args

	path, err := exec.LookPath(args[0])
	if err != nil {
		fatal(cerrors.WrapWithDetail(err, cerrors.ErrExecFailed, "init: lookup", args[0]))
	}

	// The /dev symlinks point at these fds; Go opens files close-on-exec,
	// so clear that flag to keep them open in the exec'd process.
	for _, f := range hostDevices {
		if _, _, errno := syscall.Syscall(syscall.SYS_FCNTL, f.Fd(), syscall.F_SETFD, 0); errno != 0 {
			fatal(cerrors.WrapWithDetail(errno, cerrors.ErrExecFailed, "init: keep device fd", f.Name()))
		}
	}

	if err := syscall.Exec(path, args, env); err != nil {
		fatal(cerrors.WrapWithDetail(err, cerrors.ErrExecFailed, "init: exec", path))
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "bento: %v\n", err)
	os.Exit(initErrorExitCode)
}

// setUser applies process.user: supplementary groups, gid, uid, umask, in
// that order (gid must be set while the process still has permission to
// change it, before uid is dropped).
func setUser(user specs.User) error {
	if len(user.AdditionalGids) > 0 {
		gids := make([]int, len(user.AdditionalGids))
		for i, g := range user.AdditionalGids {
			gids[i] = int(g)
		}
		if err := syscall.Setgroups(gids); err != nil {
			fmt.Fprintf(os.Stderr, "bento: init: warning: setgroups: %v\n", err)
		}
	}

	if user.GID != 0 {
		if err := syscall.Setgid(int(user.GID)); err != nil {
			return cerrors.Wrap(err, cerrors.ErrExecFailed, "init: setgid")
		}
	}
	if user.UID != 0 {
		if err := syscall.Setuid(int(user.UID)); err != nil {
			return cerrors.Wrap(err, cerrors.ErrExecFailed, "init: setuid")
		}
	}
	if user.Umask != nil {
		syscall.Umask(int(*user.Umask))
	}
	return nil
}
