package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bento/container"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show resource usage for every container with a cgroup",
	Long: `Stats collects memory, pids, and CPU% usage from each container's
cgroup leaf. Containers created with --no-cgroups report blank usage
columns rather than an error.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	containers, _, err := container.List(store)
	if err != nil {
		return err
	}

	fmt.Println("CONTAINER RESOURCE USAGE")
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "CONTAINER\tMEM CURRENT\tMEM PEAK\tPIDS\tCPU%")
	for _, c := range containers {
		s := c.CollectStats()
		if !s.HasCgroup {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\n", s.ID)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f\n", s.ID, s.MemoryCurrent, s.MemoryPeak, s.PidsCurrent, s.CPUPercent)
	}
	return w.Flush()
}
