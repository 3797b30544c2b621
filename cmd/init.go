package cmd

import (
	"github.com/spf13/cobra"

	"bento/container"
)

// initCmd exists so `bento __bento_init__` shows up (hidden) in help output
// and so cobra routes it correctly if main ever calls Execute before
// checking container.IsInitArg. The normal path intercepts this argument in
// main before cobra parses anything, since RunInit never returns.
var initCmd = &cobra.Command{
	Use:    container.InitArgName,
	Hidden: true,
	Args:   cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		container.RunInit()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
