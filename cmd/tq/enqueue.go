package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue -- CMD [ARGS...]",
	Short: "Enqueue a command line to run under the supervisor",
	Long: `Enqueue takes everything after "--" as the command line, joined with
single spaces (quoting applied by the calling shell is not preserved),
and inherits the caller's current working directory.`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmdline := strings.Join(args, " ")
		if cmdline == "" {
			return fmt.Errorf("enqueue: no command given after --")
		}
		pri, _ := cmd.Flags().GetInt("pri")
		rsc, _ := cmd.Flags().GetFloat64("rsc")

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		t, err := c.Enqueue(cwd, cmdline, pri, rsc)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued task %d\n", t.ID)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().Int("pri", 0, "priority (larger runs earlier)")
	enqueueCmd.Flags().Float64("rsc", 0, "resource weight demanded")
}
