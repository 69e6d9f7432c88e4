package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch the supervisor as a detached daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := c.Start(); err != nil {
			return err
		}
		fmt.Println("supervisor started")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Send SIGTERM to the running supervisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := c.Stop(); err != nil {
			return err
		}
		fmt.Println("supervisor stopped")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the supervisor is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		alive, pid, err := c.IsDaemonAlive()
		if err != nil {
			return err
		}
		if alive {
			fmt.Printf("supervisor running, pid %d\n", pid)
		} else {
			fmt.Println("supervisor not running")
		}
		return nil
	},
}
