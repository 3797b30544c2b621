// Package cmd implements the Bento CLI: one cobra subcommand per lifecycle
// operation, plus the hidden init entry point the runtime re-execs itself
// into.
package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bento/logging"
	"bento/state"
)

var (
	globalRoot  string
	globalDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "bento",
	Short: "A rootless OCI container runtime",
	Long: `Bento creates and manages OCI-compliant containers without a daemon
and without root privileges, using user namespaces and a delegated cgroup
v2 subtree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalRoot, "root", "", "state directory (default: $XDG_STATE_HOME/bento)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

// Execute runs the root command, returning any command error for main to
// translate into an exit code.
func Execute() error {
	return rootCmd.Execute()
}

func setupLogging() {
	if globalDebug {
		logging.SetDefault(logging.Default().Level(zerolog.DebugLevel))
	}
}

// openStore builds the state store rooted at the --root flag, or its
// default location.
func openStore() (*state.Store, error) {
	root := globalRoot
	if root == "" {
		root = state.DefaultRoot()
	}
	return state.NewStore(root)
}
