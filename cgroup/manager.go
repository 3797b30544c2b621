// Package cgroup manages the cgroup v2 delegated subtree a rootless
// container is placed into: discovering the subtree the invoking user
// owns, creating and tearing down a per-container leaf, enabling
// controllers, applying resource limits, and reading back usage.
package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	cerrors "bento/errors"
)

// cgroupRoot is the fixed cgroup v2 mountpoint.
const cgroupRoot = "/sys/fs/cgroup"

// delegatedControllers are the controllers Bento ever requests be enabled.
// "io" is deliberately absent: rootless delegation commonly excludes it,
// and section 4.2 forbids attempting io writes.
var delegatedControllers = []string{"memory", "cpu", "pids"}

// teardownAttempts and teardownDelay bound the EBUSY retry loop on Destroy.
const (
	teardownAttempts = 10
	teardownDelay    = 100 * time.Millisecond
)

// Manager owns a single container's cgroup v2 leaf directory.
type Manager struct {
	path string
}

// DiscoverBase returns the absolute delegated cgroup base for the calling
// process, read from /proc/self/cgroup: the entry whose hierarchy id is
// "0" (the unified hierarchy) gives a path relative to cgroupRoot.
func DiscoverBase() (string, error) {
	f, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return "", cerrors.Wrap(err, cerrors.ErrCgroupUnavailable, "open /proc/self/cgroup")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.SplitN(line, ":", 3)
		if len(fields) != 3 {
			continue
		}
		if fields[0] != "0" {
			continue
		}
		return filepath.Join(cgroupRoot, fields[2]), nil
	}
	if err := scanner.Err(); err != nil {
		return "", cerrors.Wrap(err, cerrors.ErrCgroupUnavailable, "read /proc/self/cgroup")
	}

	return "", cerrors.New(cerrors.ErrCgroupUnavailable, "discover subtree", "no hierarchy id 0 entry found")
}

// New creates (or reopens) the leaf cgroup "<base>/<id>" after enabling the
// delegated controllers in base's cgroup.subtree_control (the leaf's parent).
func New(id string) (*Manager, error) {
	base, err := DiscoverBase()
	if err != nil {
		return nil, err
	}

	if err := enableControllers(base); err != nil {
		return nil, err
	}

	leaf := filepath.Join(base, id)
	if err := os.MkdirAll(leaf, 0o755); err != nil {
		return nil, cerrors.WrapWithContainer(err, cerrors.ErrCgroupUnavailable, "create leaf", id)
	}

	return &Manager{path: leaf}, nil
}

// enableControllers appends the delegated controller set to base's
// cgroup.subtree_control, skipping any controller base.cgroup.controllers
// does not list (per section 4.2, a rootless subtree commonly lacks io).
func enableControllers(base string) error {
	available, err := readControllers(filepath.Join(base, "cgroup.controllers"))
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrCgroupUnavailable, "read cgroup.controllers")
	}

	var toEnable []string
	for _, c := range delegatedControllers {
		if available[c] {
			toEnable = append(toEnable, "+"+c)
		}
	}
	if len(toEnable) == 0 {
		return nil
	}

	path := filepath.Join(base, "cgroup.subtree_control")
	if err := os.WriteFile(path, []byte(strings.Join(toEnable, " ")), 0o644); err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrCgroupControllerMissing, "enable controllers",
			fmt.Sprintf("write %s", path))
	}
	return nil
}

func readControllers(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, name := range strings.Fields(string(data)) {
		set[name] = true
	}
	return set, nil
}

// FromPath wraps an already-known leaf path, for callers (delete, stats)
// that have a persisted cgroup_path rather than an id to rediscover from.
func FromPath(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the leaf's absolute filesystem path.
func (m *Manager) Path() string {
	return m.path
}

// Join migrates pid into the leaf by writing cgroup.procs.
func (m *Manager) Join(pid int) error {
	path := filepath.Join(m.path, "cgroup.procs")
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return cerrors.Wrap(err, cerrors.ErrCgroupUnavailable, "join cgroup")
	}
	return nil
}

// Limits is the set of optional resource limits a create invocation may
// request (section 6's --memory-limit/--memory-high/--memory-swap-limit/
// --cpu-limit/--cpu-weight/--pids-limit flags, already parsed to raw units).
type Limits struct {
	MemoryLimit *Size
	MemoryHigh  *Size
	MemorySwap  *Size
	// CPUQuota and CPUPeriod together form cpu.max's "<quota> <period>".
	// A nil Quota writes "max" (no quota).
	CPUQuota  *int64
	CPUPeriod *uint64
	CPUWeight *uint64
	PidsLimit *int64
}

// limitWriteFailure records one controller file write that failed during
// Apply, so every write is attempted rather than stopping at the first
// failure (section 7: limit application is independent per controller).
// The returned error names the first failed controller and how many more
// failed.
type limitWriteFailure struct {
	controller string
	err        error
}

// Apply writes every limit present in l. Each controller file is written
// independently; a failure on one does not block the others. All failures
// are collected and returned as a single ErrLimitApplyFailed, except that a
// failed memory.swap.max write (commonly unsupported in rootless setups) is
// demoted to a warning returned via the warnings slice instead of an error.
func (m *Manager) Apply(l Limits) (warnings []string, err error) {
	var failures []limitWriteFailure

	if l.MemoryLimit != nil {
		if werr := m.write("memory.max", l.MemoryLimit.String()); werr != nil {
			failures = append(failures, limitWriteFailure{"memory.max", werr})
		}
	}
	if l.MemoryHigh != nil {
		if werr := m.write("memory.high", l.MemoryHigh.String()); werr != nil {
			failures = append(failures, limitWriteFailure{"memory.high", werr})
		}
	}
	if l.MemorySwap != nil {
		if werr := m.write("memory.swap.max", l.MemorySwap.String()); werr != nil {
			warnings = append(warnings, fmt.Sprintf("memory.swap.max unsupported: %v", werr))
		}
	}

	if l.CPUQuota != nil || l.CPUPeriod != nil {
		quota := "max"
		if l.CPUQuota != nil && *l.CPUQuota > 0 {
			quota = strconv.FormatInt(*l.CPUQuota, 10)
		}
		period := uint64(100000)
		if l.CPUPeriod != nil && *l.CPUPeriod > 0 {
			period = *l.CPUPeriod
		}
		if werr := m.write("cpu.max", fmt.Sprintf("%s %d", quota, period)); werr != nil {
			failures = append(failures, limitWriteFailure{"cpu.max", werr})
		}
	}
	if l.CPUWeight != nil {
		if werr := m.write("cpu.weight", strconv.FormatUint(*l.CPUWeight, 10)); werr != nil {
			failures = append(failures, limitWriteFailure{"cpu.weight", werr})
		}
	}
	if l.PidsLimit != nil {
		if werr := m.write("pids.max", strconv.FormatInt(*l.PidsLimit, 10)); werr != nil {
			failures = append(failures, limitWriteFailure{"pids.max", werr})
		}
	}

	if len(failures) == 0 {
		return warnings, nil
	}

	first := failures[0]
	detail := fmt.Sprintf("%s (and %d more)", first.controller, len(failures)-1)
	if len(failures) == 1 {
		detail = first.controller
	}
	return warnings, cerrors.WrapWithDetail(first.err, cerrors.ErrLimitApplyFailed, "apply limits", detail)
}

func (m *Manager) write(file, value string) error {
	return os.WriteFile(filepath.Join(m.path, file), []byte(value), 0o644)
}

// Stats is a point-in-time snapshot of the leaf's usage files. A field is
// left at its zero value when its source file is absent or unreadable
// (section 4.7: missing files produce blank cells, not errors).
type Stats struct {
	MemoryCurrent int64
	MemoryPeak    int64
	PidsCurrent   int64
	CPUUsageUsec  uint64
}

// ReadStats collects the current usage snapshot.
func (m *Manager) ReadStats() Stats {
	var s Stats
	s.MemoryCurrent, _ = readInt64(filepath.Join(m.path, "memory.current"))
	s.MemoryPeak, _ = readInt64(filepath.Join(m.path, "memory.peak"))
	s.PidsCurrent, _ = readInt64(filepath.Join(m.path, "pids.current"))
	s.CPUUsageUsec, _ = readCPUUsageUsec(filepath.Join(m.path, "cpu.stat"))
	return s
}

// Freeze writes cgroup.freeze to pause every process in the leaf.
func (m *Manager) Freeze() error {
	return m.write("cgroup.freeze", "1")
}

// Thaw writes cgroup.freeze to resume every process in the leaf.
func (m *Manager) Thaw() error {
	return m.write("cgroup.freeze", "0")
}

// CPUPercent samples cpu.stat's usage_usec twice, interval apart, and
// returns the percentage of a single CPU consumed over that window
// (section 4.7's stats aggregator). The second read is taken under a
// Freeze/Thaw bracket so a container that exits mid-sample can't be torn
// down by a concurrent delete between the read and the caller observing
// it; a freeze failure is not fatal (a rootless delegation may lack
// cgroup.freeze), only less precise.
func (m *Manager) CPUPercent(interval time.Duration) (float64, error) {
	path := filepath.Join(m.path, "cpu.stat")

	before, err := readCPUUsageUsec(path)
	if err != nil {
		return 0, cerrors.Wrap(err, cerrors.ErrCgroupUnavailable, "read cpu.stat")
	}

	time.Sleep(interval)

	if m.Freeze() == nil {
		defer m.Thaw()
	}

	after, err := readCPUUsageUsec(path)
	if err != nil {
		return 0, cerrors.Wrap(err, cerrors.ErrCgroupUnavailable, "read cpu.stat")
	}

	deltaUsec := float64(after - before)
	windowUsec := float64(interval.Microseconds())
	if windowUsec == 0 {
		return 0, nil
	}
	return (deltaUsec / windowUsec) * 100, nil
}

func readInt64(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readCPUUsageUsec(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "usage_usec" {
			return strconv.ParseUint(fields[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("usage_usec not found in %s", path)
}

// Destroy removes the leaf directory. If the kernel refuses with EBUSY
// (processes still resident), it sweeps cgroup.procs with SIGKILL and
// retries up to teardownAttempts times before surfacing ErrCgroupBusy.
func (m *Manager) Destroy() error {
	for attempt := 0; attempt < teardownAttempts; attempt++ {
		err := os.Remove(m.path)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) && err != syscall.EBUSY && !isEBUSY(err) {
			if os.IsNotExist(err) {
				return nil
			}
			return cerrors.Wrap(err, cerrors.ErrCgroupBusy, "destroy")
		}

		m.killResidents()
		time.Sleep(teardownDelay)
	}
	return cerrors.New(cerrors.ErrCgroupBusy, "destroy", fmt.Sprintf("leaf %s still busy after %d attempts", m.path, teardownAttempts))
}

func isEBUSY(err error) bool {
	perr, ok := err.(*os.PathError)
	return ok && perr.Err == syscall.EBUSY
}

// killResidents sends SIGKILL to every pid still listed in cgroup.procs.
func (m *Manager) killResidents() {
	data, err := os.ReadFile(filepath.Join(m.path, "cgroup.procs"))
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		syscall.Kill(pid, syscall.SIGKILL)
	}
}
