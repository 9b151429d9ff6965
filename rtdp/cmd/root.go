// Package cmd provides the command-line interface of rtdp.
package cmd

import (
	"fmt"
	"os"

	"github.com/JeffersonLab/SRO-RTDP-sub001/config"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rtdp",
	Short: "rtdp collects the streams of readout controllers.",
	Long: `rtdp admits a fixed number of readout controllers, waits until ` +
		`all of them are connected and hands their streams to the merge ` +
		`stage. It can also scan recorded evio files for the source ids ` +
		`they contain and impersonate a readout controller for testing.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// fatal prints the problem and exits through the registered exit handlers.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "rtdp: "+format+"\n", args...)
	atexit.Exit(1)
}

// lookupChain looks variables up in the environment and then in the env
// file.
func lookupChain(envFile string) config.Lookup {
	dotenv, err := config.DotEnv(envFile)
	if err != nil {
		fatal("cannot read %s: %v", envFile, err)
	}

	return config.Chain(config.Environment(), dotenv)
}
