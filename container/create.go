package container

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"bento/cgroup"
	cerrors "bento/errors"
	"bento/linux"
	"bento/logging"
	"bento/ociconfig"
	"bento/state"
	"bento/utils"
)

// Environment variables passed to the re-exec'd init process. These cross
// the exec boundary as plain env vars rather than flags because init never
// goes through the CLI's own argument parser.
const (
	envBundle   = "_BENTO_BUNDLE"
	envRootfs   = "_BENTO_ROOTFS"
	envSyncFD   = "_BENTO_SYNC_FD"
	initArg     = "__bento_init__"
	syncChildFD = 3
)

// InitArgName is the hidden re-exec argument, exported so the CLI layer can
// both register it as a hidden subcommand and detect it before cobra parses
// anything.
const InitArgName = initArg

// CreateOptions carries the section 6 create flags not already present in
// the loaded OCI config.
type CreateOptions struct {
	Bundle           string
	PopulationPolicy linux.PopulationPolicy
	NoCgroups        bool
	Limits           cgroup.Limits
}

// Create runs the full rootless bootstrap dance (section 4.5): fork with
// the requested namespaces, install UID/GID maps, create and join the
// cgroup, release the child, and record the resulting "created" state.
func Create(store *state.Store, id string, opts CreateOptions) (*Container, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	bundle, err := filepath.Abs(opts.Bundle)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrConfigInvalid, "resolve bundle path")
	}
	spec, err := ociconfig.Load(bundle)
	if err != nil {
		return nil, err
	}

	rec, err := store.Create(id, bundle)
	if err != nil {
		return nil, err
	}
	log := logging.WithOperation(logging.WithContainer(logging.Default(), id), "create")

	cleanup := func() { store.Delete(id) }

	bundleRootfs := ociconfig.ResolveRootfs(spec, bundle)
	workspace := filepath.Join(store.WorkDir(), id, "rootfs")
	readonly := spec.Root != nil && spec.Root.Readonly
	effectiveRoot, err := linux.PrepareWorkspace(opts.PopulationPolicy, bundleRootfs, workspace, readonly)
	if err != nil {
		cleanup()
		return nil, err
	}
	if opts.PopulationPolicy == linux.PolicyCopy || opts.PopulationPolicy == linux.PolicyBind {
		rec.WorkspacePath = workspace
	}

	sync, err := utils.NewSyncPipe()
	if err != nil {
		cleanup()
		return nil, cerrors.Wrap(err, cerrors.ErrInternal, "create sync pipe")
	}

	self, err := os.Executable()
	if err != nil {
		cleanup()
		return nil, cerrors.Wrap(err, cerrors.ErrInternal, "resolve self executable")
	}

	var namespaces []specs.LinuxNamespace
	if spec.Linux != nil {
		namespaces = spec.Linux.Namespaces
	}
	if linux.HasNamespace(namespaces, specs.NetworkNamespace) {
		if path := linux.GetNamespacePath(namespaces, specs.NetworkNamespace); path != "" {
			log.Debug().Str("path", path).Msg("joining existing network namespace")
		}
	}

	cmd := exec.Command(self, initArg)
	cmd.Dir = bundle
	cmd.ExtraFiles = []*os.File{sync.ChildFile()}
	cmd.SysProcAttr = linux.BuildSysProcAttr(namespaces)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", envBundle, bundle),
		fmt.Sprintf("%s=%s", envRootfs, effectiveRoot),
		fmt.Sprintf("%s=%d", envSyncFD, syncChildFD),
	)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		sync.CloseChild()
		sync.Close()
		cleanup()
		return nil, cerrors.Wrap(err, cerrors.ErrNamespaceDenied, "fork init process")
	}
	sync.CloseChild() // parent doesn't read from the sync pipe

	pid := cmd.Process.Pid
	log.Info().Int("pid", pid).Msg("init process forked")

	var uidMappings, gidMappings []specs.LinuxIDMapping
	if spec.Linux != nil {
		uidMappings = spec.Linux.UIDMappings
		gidMappings = spec.Linux.GIDMappings
	}
	if len(uidMappings) == 0 {
		uidMappings = []specs.LinuxIDMapping{{ContainerID: 0, HostID: uint32(os.Geteuid()), Size: 1}}
	}
	if len(gidMappings) == 0 {
		gidMappings = []specs.LinuxIDMapping{{ContainerID: 0, HostID: uint32(os.Getegid()), Size: 1}}
	}
	if err := linux.WriteIDMappings(pid, uidMappings, gidMappings); err != nil {
		sync.Close()
		cmd.Process.Kill()
		cleanup()
		return nil, err
	}

	var cgroupMgr *cgroup.Manager
	if !opts.NoCgroups {
		cgroupMgr, err = cgroup.New(id)
		if err != nil {
			sync.Close()
			cmd.Process.Kill()
			cleanup()
			return nil, err
		}
		if warnings, applyErr := cgroupMgr.Apply(opts.Limits); applyErr != nil {
			sync.Close()
			cmd.Process.Kill()
			cgroupMgr.Destroy()
			cleanup()
			return nil, applyErr
		} else {
			for _, w := range warnings {
				log.Warn().Msg(w)
			}
		}
		if err := cgroupMgr.Join(pid); err != nil {
			sync.Close()
			cmd.Process.Kill()
			cgroupMgr.Destroy()
			cleanup()
			return nil, err
		}
		rec.CgroupPath = cgroupMgr.Path()
	}

	if err := sync.Release(); err != nil {
		cmd.Process.Kill()
		if cgroupMgr != nil {
			cgroupMgr.Destroy()
		}
		cleanup()
		return nil, cerrors.Wrap(err, cerrors.ErrInternal, "release child")
	}

	rec.Status = state.StatusCreated
	rec.Pid = pid
	rec.ConfigSnapshot = spec
	if err := store.Save(rec); err != nil {
		return nil, err
	}

	log.Info().Msg("container created")
	return &Container{store: store, Record: rec, Config: spec}, nil
}
