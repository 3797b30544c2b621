package container

import (
	"time"

	"bento/cgroup"
)

// CPUSampleWindow is the fixed interval between the two usage_usec reads
// used to compute CPU% (section 4.7).
const CPUSampleWindow = 200 * time.Millisecond

// Stats is the per-container row collected for the stats aggregator.
// Fields are left at their zero value when the corresponding cgroup file is
// unavailable (section 4.7: missing files produce blank cells, not errors).
type Stats struct {
	ID            string
	MemoryCurrent int64
	MemoryPeak    int64
	PidsCurrent   int64
	CPUPercent    float64
	HasCgroup     bool
}

// CollectStats gathers a usage snapshot for c. Containers created with
// --no-cgroups (no recorded cgroup_path) return a row with HasCgroup false
// and every usage field blank.
func (c *Container) CollectStats() Stats {
	s := Stats{ID: c.Record.ID}
	if c.Record.CgroupPath == "" {
		return s
	}
	s.HasCgroup = true

	mgr := cgroup.FromPath(c.Record.CgroupPath)
	snapshot := mgr.ReadStats()
	s.MemoryCurrent = snapshot.MemoryCurrent
	s.MemoryPeak = snapshot.MemoryPeak
	s.PidsCurrent = snapshot.PidsCurrent

	if pct, err := mgr.CPUPercent(CPUSampleWindow); err == nil {
		s.CPUPercent = pct
	}
	return s
}
