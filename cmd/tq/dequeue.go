package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var dequeueCmd = &cobra.Command{
	Use:   "dequeue ID",
	Short: "Remove a non-running task from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("dequeue: invalid task id %q", args[0])
		}
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		deleted, err := c.Dequeue(id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("dequeue: task %d is running or does not exist", id)
		}
		fmt.Printf("dequeued task %d\n", id)
		return nil
	},
}
