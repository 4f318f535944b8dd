package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scitags/conntuple/probe"
)

var (
	confPath    string
	logLevel    string
	logTimeFlag bool

	builtCommit = "dev"

	rootCmd = &cobra.Command{
		Use:   "conntuple",
		Short: "Extract connection tuples from kernel sockets.",
		Long: "conntuple consumes the socket snapshots pushed by its capture program\n" +
			"and turns them into connection tuples, reading kernel structures with\n" +
			"the strategy the binary was built with.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Get the built version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("built commit: %s\nstrategy: %s\n", builtCommit, probe.Strategy)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&confPath, "conf", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "one of trace, debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logTimeFlag, "log-time", false, "include timestamps in log lines")

	// Disable completion please!
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add the different sub-commands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(offsetsCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(fingerprintCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
