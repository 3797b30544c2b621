package linux

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	cerrors "bento/errors"
)

// Mount propagation and option flags.
const (
	MS_PRIVATE     = syscall.MS_PRIVATE
	MS_SHARED      = syscall.MS_SHARED
	MS_SLAVE       = syscall.MS_SLAVE
	MS_UNBINDABLE  = syscall.MS_UNBINDABLE
	MS_REC         = syscall.MS_REC
	MS_BIND        = syscall.MS_BIND
	MS_RDONLY      = syscall.MS_RDONLY
	MS_NOSUID      = syscall.MS_NOSUID
	MS_NODEV       = syscall.MS_NODEV
	MS_NOEXEC      = syscall.MS_NOEXEC
	MS_REMOUNT     = syscall.MS_REMOUNT
	MS_STRICTATIME = syscall.MS_STRICTATIME
	MS_RELATIME    = syscall.MS_RELATIME
	MS_NOATIME     = syscall.MS_NOATIME
)

var mountOptionFlags = map[string]uintptr{
	"ro": MS_RDONLY, "rw": 0,
	"nosuid": MS_NOSUID, "suid": 0,
	"nodev": MS_NODEV, "dev": 0,
	"noexec": MS_NOEXEC, "exec": 0,
	"remount": MS_REMOUNT,
	"bind":    MS_BIND, "rbind": MS_BIND | MS_REC,
	"private": MS_PRIVATE, "rprivate": MS_PRIVATE | MS_REC,
	"shared": MS_SHARED, "rshared": MS_SHARED | MS_REC,
	"slave": MS_SLAVE, "rslave": MS_SLAVE | MS_REC,
	"unbindable": MS_UNBINDABLE, "runbindable": MS_UNBINDABLE | MS_REC,
	"relatime": MS_RELATIME, "strictatime": MS_STRICTATIME, "noatime": MS_NOATIME,
}

// PopulationPolicy controls how the bundle's rootfs becomes the container's
// effective root (section 4.3).
type PopulationPolicy string

const (
	PolicyCopy   PopulationPolicy = "copy"
	PolicyManual PopulationPolicy = "manual"
	PolicyBind   PopulationPolicy = "bind"
)

// PrepareWorkspace materializes the effective root according to policy.
// Runs outside the container's namespaces, before fork. For PolicyCopy it
// recursively copies bundleRootfs into workspaceDir. For PolicyManual it
// returns bundleRootfs unchanged. For PolicyBind it bind-mounts bundleRootfs
// onto workspaceDir (read-only when readonly is set).
func PrepareWorkspace(policy PopulationPolicy, bundleRootfs, workspaceDir string, readonly bool) (string, error) {
	switch policy {
	case PolicyManual, "":
		return bundleRootfs, nil

	case PolicyCopy:
		if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
			return "", cerrors.Wrap(err, cerrors.ErrRootfsPrepareFailed, "create workspace")
		}
		if err := copyTree(bundleRootfs, workspaceDir); err != nil {
			return "", cerrors.Wrap(err, cerrors.ErrRootfsPrepareFailed, "copy rootfs")
		}
		return workspaceDir, nil

	case PolicyBind:
		if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
			return "", cerrors.Wrap(err, cerrors.ErrRootfsPrepareFailed, "create workspace")
		}
		flags := uintptr(MS_BIND | MS_REC)
		if err := syscall.Mount(bundleRootfs, workspaceDir, "", flags, ""); err != nil {
			return "", cerrors.Wrap(err, cerrors.ErrRootfsPrepareFailed, "bind rootfs")
		}
		if readonly {
			if err := syscall.Mount("", workspaceDir, "", MS_BIND|MS_REMOUNT|MS_RDONLY|MS_REC, ""); err != nil {
				return "", cerrors.Wrap(err, cerrors.ErrRootfsPrepareFailed, "remount bind readonly")
			}
		}
		return workspaceDir, nil

	default:
		return "", cerrors.New(cerrors.ErrRootfsPrepareFailed, "prepare workspace",
			fmt.Sprintf("unknown population policy %q", policy))
	}
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode())
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// EnterRoot performs the in-namespace root switch: makes the mount tree
// private, bind-mounts root onto itself so it qualifies as a pivot_root
// target, then pivots (falling back to chroot when pivot_root is refused,
// which rootless setups commonly do).
func EnterRoot(root string) error {
	if err := syscall.Mount("", "/", "", MS_REC|MS_PRIVATE, ""); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "make / rprivate")
	}

	if err := syscall.Mount(root, root, "", MS_BIND|MS_REC, ""); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "bind root to itself")
	}

	if err := pivotRoot(root); err != nil {
		if chrootErr := chrootFallback(root); chrootErr != nil {
			return cerrors.WrapWithDetail(chrootErr, cerrors.ErrPivotFailed, "enter root",
				fmt.Sprintf("pivot_root failed (%v) and chroot fallback failed", err))
		}
	}
	return nil
}

func pivotRoot(root string) error {
	oldRoot := filepath.Join(root, ".bento-old-root")
	if err := os.MkdirAll(oldRoot, 0o700); err != nil {
		return fmt.Errorf("mkdir old root: %w", err)
	}

	if err := syscall.PivotRoot(root, oldRoot); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}

	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}

	old := "/.bento-old-root"
	if err := syscall.Unmount(old, syscall.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount old root: %w", err)
	}
	os.RemoveAll(old)
	return nil
}

func chrootFallback(root string) error {
	if err := syscall.Chroot(root); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	return os.Chdir("/")
}

// SetupConfigMounts performs every mount entry from the bundle config,
// relative to the (already entered) root.
func SetupConfigMounts(mounts []specs.Mount) error {
	for _, m := range mounts {
		dest := m.Destination
		flags, data := parseMountOptions(m.Options)
		isBind := m.Type == "bind" || hasOption(m.Options, "bind") || hasOption(m.Options, "rbind")

		if isBind {
			source := m.Source
			info, err := os.Stat(source)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if err := os.MkdirAll(dest, 0o755); err != nil {
					return cerrors.WrapWithDetail(err, cerrors.ErrMountFailed, "mkdir mountpoint", dest)
				}
			} else {
				if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					return cerrors.WrapWithDetail(err, cerrors.ErrMountFailed, "mkdir parent", dest)
				}
				if f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
					f.Close()
				}
			}
			if err := syscall.Mount(source, dest, "", flags|MS_BIND, data); err != nil {
				return cerrors.WrapWithDetail(err, cerrors.ErrMountFailed, "bind mount", dest)
			}
			continue
		}

		if err := os.MkdirAll(dest, 0o755); err != nil {
			return cerrors.WrapWithDetail(err, cerrors.ErrMountFailed, "mkdir mountpoint", dest)
		}
		if err := syscall.Mount(m.Source, dest, m.Type, flags, data); err != nil {
			return cerrors.WrapWithDetail(err, cerrors.ErrMountFailed, "mount", fmt.Sprintf("%s (%s)", dest, m.Type))
		}
	}
	return nil
}

func parseMountOptions(options []string) (uintptr, string) {
	var flags uintptr
	var dataOpts []string
	for _, opt := range options {
		if flag, ok := mountOptionFlags[opt]; ok {
			flags |= flag
		} else {
			dataOpts = append(dataOpts, opt)
		}
	}
	return flags, strings.Join(dataOpts, ",")
}

func hasOption(options []string, opt string) bool {
	for _, o := range options {
		if o == opt {
			return true
		}
	}
	return false
}

// RemountRootReadonly remounts the now-entered root read-only, for
// root.readonly in the config.
func RemountRootReadonly() error {
	if err := syscall.Mount("", "/", "", MS_REMOUNT|MS_BIND|MS_RDONLY, ""); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "remount / readonly")
	}
	return nil
}

// MaskPath hides path by bind-mounting over it: /dev/null for files,
// an empty read-only tmpfs for directories.
func MaskPath(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return nil
	}

	if info.IsDir() {
		return syscall.Mount("tmpfs", path, "tmpfs", MS_RDONLY, "size=0")
	}
	return syscall.Mount("/dev/null", path, "", MS_BIND, "")
}

// ReadonlyPath bind-mounts path onto itself and remounts it read-only.
func ReadonlyPath(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := syscall.Mount(path, path, "", MS_BIND|MS_REC, ""); err != nil {
		return err
	}
	return syscall.Mount(path, path, "", MS_BIND|MS_REMOUNT|MS_RDONLY|MS_REC, "")
}

// MountProc mounts procfs at /proc.
func MountProc() error {
	if err := os.MkdirAll("/proc", 0o755); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "mkdir /proc")
	}
	if err := syscall.Mount("proc", "/proc", "proc", MS_NOSUID|MS_NOEXEC|MS_NODEV, ""); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "mount /proc")
	}
	return nil
}

// MountSys mounts a read-only sysfs at /sys.
func MountSys() error {
	if err := os.MkdirAll("/sys", 0o755); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "mkdir /sys")
	}
	if err := syscall.Mount("sysfs", "/sys", "sysfs", MS_NOSUID|MS_NOEXEC|MS_NODEV|MS_RDONLY, ""); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "mount /sys")
	}
	return nil
}

// defaultDevNames is the fixed /dev subset: section 4.3's null, zero,
// random, urandom and tty, plus full.
var defaultDevNames = []string{"null", "zero", "full", "random", "urandom", "tty"}

// OpenHostDevices opens the host's real device nodes for the fixed /dev
// subset, while the host's /dev is still reachable (before EnterRoot
// switches the mount namespace's root). The returned files must be kept
// open for the life of the container process: SetupDev symlinks into them
// by fd rather than creating device nodes, since mknod is denied inside
// the rootless user namespace this runtime targets.
func OpenHostDevices() (map[string]*os.File, error) {
	files := make(map[string]*os.File, len(defaultDevNames))
	for _, name := range defaultDevNames {
		hostPath := filepath.Join("/dev", name)
		f, err := os.OpenFile(hostPath, os.O_RDWR, 0)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, cerrors.WrapWithDetail(err, cerrors.ErrMountFailed, "open host device", hostPath)
		}
		files[name] = f
	}
	return files, nil
}

// SetupDev mounts a tmpfs at /dev, symlinks the fixed device-node subset
// section 4.3 names to the already-open host device fds in hostDevices
// (via /proc/self/fd/<n>, the rootless equivalent of a real device node),
// and mounts devpts at /dev/pts.
func SetupDev(hostDevices map[string]*os.File) error {
	if err := os.MkdirAll("/dev", 0o755); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "mkdir /dev")
	}
	if err := syscall.Mount("tmpfs", "/dev", "tmpfs", MS_NOSUID|MS_STRICTATIME, "mode=755,size=65536k"); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "mount /dev tmpfs")
	}

	for _, name := range defaultDevNames {
		f, ok := hostDevices[name]
		if !ok {
			continue
		}
		target := fmt.Sprintf("/proc/self/fd/%d", f.Fd())
		path := filepath.Join("/dev", name)
		if err := os.Symlink(target, path); err != nil && !os.IsExist(err) {
			return cerrors.WrapWithDetail(err, cerrors.ErrMountFailed, "symlink", path)
		}
	}

	if err := os.MkdirAll("/dev/pts", 0o755); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "mkdir /dev/pts")
	}
	if err := syscall.Mount("devpts", "/dev/pts", "devpts", MS_NOSUID|MS_NOEXEC, "newinstance,ptmxmode=0666,mode=0620"); err != nil {
		return cerrors.Wrap(err, cerrors.ErrMountFailed, "mount /dev/pts")
	}

	return nil
}
