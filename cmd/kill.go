package cmd

import (
	"github.com/spf13/cobra"

	"bento/container"
)

var killAll bool

var killCmd = &cobra.Command{
	Use:   "kill <id>",
	Short: "Terminate a container's init process",
	Long:  `Kill sends SIGKILL to the container's init process and reaps it. A container already stopped is a no-op success. --all signals every process in the container's process group instead of just the init pid.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

func init() {
	killCmd.Flags().BoolVarP(&killAll, "all", "a", false, "signal every process in the container, not just init")
	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	c, err := container.Load(store, args[0])
	if err != nil {
		return err
	}
	if killAll {
		return c.KillAll()
	}
	return c.Kill()
}
