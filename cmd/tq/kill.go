package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill ID",
	Short: "Send SIGTERM to a running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("kill: invalid task id %q", args[0])
		}
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := c.Kill(id); err != nil {
			return err
		}
		fmt.Printf("sent SIGTERM to task %d\n", id)
		return nil
	},
}
