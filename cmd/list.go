package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bento/container"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ps"},
	Short:   "List containers",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var listQuiet bool

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listQuiet, "quiet", "q", false, "display only container IDs")
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	containers, corrupt, err := container.List(store)
	if err != nil {
		return err
	}

	if listQuiet {
		for _, c := range containers {
			fmt.Println(c.Record.ID)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "CONTAINER\tPID\tSTATUS\tBUNDLE\tCREATED")
	for _, c := range containers {
		r := c.Record
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Pid, r.Status, r.BundlePath, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	for _, id := range corrupt {
		fmt.Fprintf(os.Stderr, "bento: warning: corrupt state record %s\n", id)
	}
	return nil
}
