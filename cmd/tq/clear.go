package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all completed (Done) tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		removed, err := c.Clear()
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d done task(s)\n", removed)
		return nil
	},
}
