package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bento/container"
	cerrors "bento/errors"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a container and its resources",
	Long: `Delete kills the container if still alive, tears down its cgroup
leaf, removes its workspace, and deletes the state record. A missing
record is reported but any orphaned cgroup or workspace at the expected
path is still cleaned up.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	id := args[0]
	err = container.Delete(store, id)
	if err == nil {
		return nil
	}

	if cerrors.IsKind(err, cerrors.ErrStateNotFound) {
		fmt.Fprintf(os.Stderr, "bento: %s: not found (cleaned up any orphaned resources)\n", id)
		return nil
	}
	return err
}
