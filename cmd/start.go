package cmd

import (
	"github.com/spf13/cobra"

	"bento/container"
)

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Verify a created container's init process",
	Long: `Start does not exec anything: Bento's create already ran the
container's command. Start confirms the init process is still alive and
transitions the record to "running", or recognizes it already exited and
transitions to "stopped". Either outcome is success.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	c, err := container.Load(store, args[0])
	if err != nil {
		return err
	}
	return c.Start()
}
