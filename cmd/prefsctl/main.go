// Command prefsctl reads and writes application preferences from the shell
// and can serve them over HTTP.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	noColor    bool
	configPath string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prefsctl",
		Short:         "Inspect and edit application preferences",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/prefs/config.yaml)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	root.AddCommand(
		newGetCmd(),
		newSetCmd(),
		newClearCmd(),
		newClearNamespaceCmd(),
		newExistsCmd(),
		newNamespaceExistsCmd(),
		newFlushCmd(),
		newServeCmd(),
		newConfigCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
