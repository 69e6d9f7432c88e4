package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Update priority and/or resource weight of a waiting task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("edit: invalid task id %q", args[0])
		}

		var pri *int
		var rsc *float64
		if cmd.Flags().Changed("pri") {
			v, _ := cmd.Flags().GetInt("pri")
			pri = &v
		}
		if cmd.Flags().Changed("rsc") {
			v, _ := cmd.Flags().GetFloat64("rsc")
			rsc = &v
		}
		if pri == nil && rsc == nil {
			return fmt.Errorf("edit: at least one of --pri or --rsc is required")
		}

		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		ok, err := c.Edit(id, pri, rsc)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("edit: task %d does not exist or is not waiting", id)
		}
		fmt.Printf("edited task %d\n", id)
		return nil
	},
}

func init() {
	editCmd.Flags().Int("pri", 0, "new priority")
	editCmd.Flags().Float64("rsc", 0, "new resource weight")
}
