package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"bento/cgroup"
	"bento/container"
	"bento/linux"
)

var (
	createBundle      string
	createMemoryLimit string
	createMemoryHigh  string
	createMemorySwap  string
	createCPULimit    string
	createCPUWeight   uint64
	createPidsLimit   int64
	createNoCgroups   bool
	createPopulation  string
)

var createCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a container from a bundle",
	Long: `Create forks the container's init process inside new namespaces,
installs its UID/GID maps, joins it to a cgroup leaf, prepares its rootfs,
and execs process.args[0]. The container is left in the "created" state
(or "stopped" if the command already exited).`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createBundle, "bundle", "b", ".", "path to the bundle directory")
	createCmd.Flags().StringVar(&createMemoryLimit, "memory-limit", "", "memory.max (bytes, or K/M/G suffix, or \"max\")")
	createCmd.Flags().StringVar(&createMemoryHigh, "memory-high", "", "memory.high")
	createCmd.Flags().StringVar(&createMemorySwap, "memory-swap-limit", "", "memory.swap.max")
	createCmd.Flags().StringVar(&createCPULimit, "cpu-limit", "", `cpu.max as "<quota> <period>" in microseconds`)
	createCmd.Flags().Uint64Var(&createCPUWeight, "cpu-weight", 0, "cpu.weight (1-10000)")
	createCmd.Flags().Int64Var(&createPidsLimit, "pids-limit", 0, "pids.max")
	createCmd.Flags().BoolVar(&createNoCgroups, "no-cgroups", false, "do not create or join a cgroup")
	createCmd.Flags().StringVar(&createPopulation, "population-method", "copy", "rootfs population policy: copy, manual, or bind")
}

func runCreate(cmd *cobra.Command, args []string) error {
	id := args[0]

	policy, err := parsePopulationPolicy(createPopulation)
	if err != nil {
		return err
	}

	limits, err := parseLimits()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	opts := container.CreateOptions{
		Bundle:           createBundle,
		PopulationPolicy: policy,
		NoCgroups:        createNoCgroups,
		Limits:           limits,
	}

	_, err = container.Create(store, id, opts)
	return err
}

func parsePopulationPolicy(raw string) (linux.PopulationPolicy, error) {
	switch raw {
	case "copy":
		return linux.PolicyCopy, nil
	case "manual":
		return linux.PolicyManual, nil
	case "bind":
		return linux.PolicyBind, nil
	default:
		return "", fmt.Errorf("unknown population method %q", raw)
	}
}

func parseLimits() (cgroup.Limits, error) {
	var l cgroup.Limits

	if createMemoryLimit != "" {
		v, err := cgroup.ParseSize(createMemoryLimit)
		if err != nil {
			return l, fmt.Errorf("--memory-limit: %w", err)
		}
		l.MemoryLimit = &v
	}
	if createMemoryHigh != "" {
		v, err := cgroup.ParseSize(createMemoryHigh)
		if err != nil {
			return l, fmt.Errorf("--memory-high: %w", err)
		}
		l.MemoryHigh = &v
	}
	if createMemorySwap != "" {
		v, err := cgroup.ParseSize(createMemorySwap)
		if err != nil {
			return l, fmt.Errorf("--memory-swap-limit: %w", err)
		}
		l.MemorySwap = &v
	}
	if createCPULimit != "" {
		var quota int64
		var period uint64
		if _, err := fmt.Sscanf(createCPULimit, "%d %d", &quota, &period); err != nil {
			return l, fmt.Errorf("--cpu-limit: expected \"<quota> <period>\", got %q", createCPULimit)
		}
		l.CPUQuota = &quota
		l.CPUPeriod = &period
	}
	if createCPUWeight != 0 {
		l.CPUWeight = &createCPUWeight
	}
	if createPidsLimit != 0 {
		l.PidsLimit = &createPidsLimit
	}
	return l, nil
}
