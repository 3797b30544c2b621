// Package linux provides Linux-specific container primitives: namespace
// clone-flag construction, rootless UID/GID map installation, rootfs
// preparation, and the fixed /dev population.
package linux

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	cerrors "bento/errors"
)

// Linux namespace clone flags.
const (
	CLONE_NEWNS     = syscall.CLONE_NEWNS
	CLONE_NEWUTS    = syscall.CLONE_NEWUTS
	CLONE_NEWIPC    = syscall.CLONE_NEWIPC
	CLONE_NEWPID    = syscall.CLONE_NEWPID
	CLONE_NEWNET    = syscall.CLONE_NEWNET
	CLONE_NEWUSER   = syscall.CLONE_NEWUSER
	CLONE_NEWCGROUP = 0x02000000 // same value as syscall.CLONE_NEWCGROUP
)

var namespaceTypeToFlag = map[specs.LinuxNamespaceType]uintptr{
	specs.PIDNamespace:     CLONE_NEWPID,
	specs.NetworkNamespace: CLONE_NEWNET,
	specs.MountNamespace:   CLONE_NEWNS,
	specs.IPCNamespace:     CLONE_NEWIPC,
	specs.UTSNamespace:     CLONE_NEWUTS,
	specs.UserNamespace:    CLONE_NEWUSER,
	specs.CgroupNamespace:  CLONE_NEWCGROUP,
}

// NamespaceFlags builds clone flags for the namespaces the config requests
// to be newly created (a namespace with a non-empty Path is joined with
// setns instead, not created). CLONE_NEWUSER is always included: section
// 4.5 makes the user namespace mandatory regardless of config content.
func NamespaceFlags(namespaces []specs.LinuxNamespace) uintptr {
	flags := uintptr(CLONE_NEWUSER)
	for _, ns := range namespaces {
		if ns.Path == "" {
			if flag, ok := namespaceTypeToFlag[ns.Type]; ok {
				flags |= flag
			}
		}
	}
	return flags
}

// HasNamespace reports whether nsType appears in namespaces.
func HasNamespace(namespaces []specs.LinuxNamespace, nsType specs.LinuxNamespaceType) bool {
	for _, ns := range namespaces {
		if ns.Type == nsType {
			return true
		}
	}
	return false
}

// GetNamespacePath returns the join path for nsType, or "" when the config
// requests a newly created namespace of that type (or doesn't request it).
func GetNamespacePath(namespaces []specs.LinuxNamespace, nsType specs.LinuxNamespaceType) string {
	for _, ns := range namespaces {
		if ns.Type == nsType {
			return ns.Path
		}
	}
	return ""
}

// SetNamespaces joins every namespace in the list that names a Path. Called
// in the child after fork, before the init process execs.
func SetNamespaces(namespaces []specs.LinuxNamespace) error {
	for _, ns := range namespaces {
		if ns.Path != "" {
			if err := setns(ns.Path, ns.Type); err != nil {
				return cerrors.WrapWithDetail(err, cerrors.ErrNamespaceDenied, "setns",
					fmt.Sprintf("%s %s", ns.Type, ns.Path))
			}
		}
	}
	return nil
}

func setns(path string, nsType specs.LinuxNamespaceType) error {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer syscall.Close(fd)

	flag := namespaceTypeToFlag[nsType]
	_, _, errno := syscall.Syscall(unix.SYS_SETNS, uintptr(fd), flag, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// BuildSysProcAttr returns the SysProcAttr for the init process fork. It
// never sets SysProcAttr's own UidMappings/GidMappings: Bento installs the
// ID maps itself after fork (WriteIDMappings), because the rootless path
// needs newuidmap/newgidmap fallback logic Go's convenience fields don't
// support (section 4.5 step 6).
func BuildSysProcAttr(namespaces []specs.LinuxNamespace) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Cloneflags: NamespaceFlags(namespaces),
		Setsid:     true,
	}
}

// WriteIDMappings installs pid's UID and GID maps. It prefers the
// newuidmap/newgidmap helper binaries when available (they can install
// multi-range maps from the caller's /etc/sub{u,g}id allocation); otherwise
// it falls back to a single identity-to-effective-id entry written directly
// to /proc/<pid>/{uid,gid}_map, disabling setgroups first as the kernel
// requires (section 4.5 step 6).
func WriteIDMappings(pid int, uidMappings, gidMappings []specs.LinuxIDMapping) error {
	if uidPath, err := exec.LookPath("newuidmap"); err == nil && len(uidMappings) > 0 {
		if err := runIDMapHelper(uidPath, pid, uidMappings); err != nil {
			return cerrors.Wrap(err, cerrors.ErrIdMapFailed, "newuidmap")
		}
	} else if err := writeDirectIDMap(pid, "uid_map",
		[]specs.LinuxIDMapping{{ContainerID: 0, HostID: uint32(os.Geteuid()), Size: 1}}); err != nil {
		return err
	}

	if err := denySetgroups(pid); err != nil {
		return err
	}

	if gidPath, err := exec.LookPath("newgidmap"); err == nil && len(gidMappings) > 0 {
		if err := runIDMapHelper(gidPath, pid, gidMappings); err != nil {
			return cerrors.Wrap(err, cerrors.ErrIdMapFailed, "newgidmap")
		}
	} else if err := writeDirectIDMap(pid, "gid_map",
		[]specs.LinuxIDMapping{{ContainerID: 0, HostID: uint32(os.Getegid()), Size: 1}}); err != nil {
		return err
	}

	return nil
}

// runIDMapHelper invokes newuidmap/newgidmap with "<pid> <cid> <hid> <size>"
// triples, one per requested mapping range.
func runIDMapHelper(helperPath string, pid int, mappings []specs.LinuxIDMapping) error {
	args := []string{strconv.Itoa(pid)}
	for _, m := range mappings {
		args = append(args, strconv.FormatUint(uint64(m.ContainerID), 10),
			strconv.FormatUint(uint64(m.HostID), 10), strconv.FormatUint(uint64(m.Size), 10))
	}
	cmd := exec.Command(helperPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", helperPath, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// writeDirectIDMap writes a single identity mapping "0 <hostID> 1" directly
// to /proc/<pid>/{uid,gid}_map. Used when no subid-range helper is
// available and the caller is only mapping its own effective id.
func writeDirectIDMap(pid int, file string, mappings []specs.LinuxIDMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	path := filepath.Join("/proc", strconv.Itoa(pid), file)
	content := formatIDMap(mappings)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrIdMapFailed, "write "+file, path)
	}
	return nil
}

// denySetgroups writes "deny" to /proc/<pid>/setgroups, required by the
// kernel before an unprivileged process may write gid_map. A write that
// fails because the kernel has already moved the process past this state
// is not a real error; only genuine denial is surfaced.
func denySetgroups(pid int) error {
	path := filepath.Join("/proc", strconv.Itoa(pid), "setgroups")
	err := os.WriteFile(path, []byte("deny"), 0o644)
	if err != nil && !os.IsNotExist(err) {
		if perr, ok := err.(*os.PathError); ok && perr.Err == syscall.EACCES {
			return cerrors.Wrap(err, cerrors.ErrIdMapFailed, "deny setgroups")
		}
	}
	return nil
}

func formatIDMap(mappings []specs.LinuxIDMapping) string {
	var b strings.Builder
	for _, m := range mappings {
		fmt.Fprintf(&b, "%d %d %d\n", m.ContainerID, m.HostID, m.Size)
	}
	return b.String()
}

// SetHostname sets the hostname within the UTS namespace.
func SetHostname(hostname string) error {
	if hostname == "" {
		return nil
	}
	return syscall.Sethostname([]byte(hostname))
}
