// Command tq is tasque's client and supervisor binary: a cobra CLI
// whose subcommands map 1:1 to §4.F's client operations, plus a
// hidden "__supervisor" entry point that Start() re-execs to launch
// the dispatcher, per RF1.
package main

import (
	"fmt"
	"os"

	"github.com/cdluminate/tasque/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tq: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tq",
	Short:   "tasque - a zero-configuration single-node task queue",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("tq version %s\n", Version))

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().String("db", "", "store file path (default $TASQUE_DB or ~/.tasque/tasq.db)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(
		enqueueCmd,
		lsCmd,
		dequeueCmd,
		clearCmd,
		killCmd,
		noteCmd,
		editCmd,
		startCmd,
		stopCmd,
		statusCmd,
		supervisorCmd,
		workerCmd,
	)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}
