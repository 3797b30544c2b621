package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"bento/container"
)

var stateCmd = &cobra.Command{
	Use:   "state <id>",
	Short: "Print a container's state",
	Args:  cobra.ExactArgs(1),
	RunE:  runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	c, err := container.Load(store, args[0])
	if err != nil {
		return err
	}
	c.ReconcileLiveness()

	fmt.Printf("Container ID: %s\n", c.Record.ID)
	fmt.Printf("Status: %s\n", c.Record.Status)
	fmt.Printf("Pid: %d\n", c.Record.Pid)
	fmt.Printf("Bundle: %s\n", c.Record.BundlePath)
	fmt.Printf("Created: %s\n", c.Record.CreatedAt.Format("2006-01-02T15:04:05Z"))
	return nil
}
