package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Manage free-text annotations on tasks",
}

var noteAddCmd = &cobra.Command{
	Use:   "add ID TEXT...",
	Short: "Attach a note to a task",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("note add: invalid task id %q", args[0])
		}
		text := strings.Join(args[1:], " ")

		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := c.Annotate(id, text)
		if err != nil {
			return err
		}
		fmt.Printf("added note %d to task %d\n", n.NoteID, id)
		return nil
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm NOTEID",
	Short: "Remove a note by its noteid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noteID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("note rm: invalid note id %q", args[0])
		}
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return c.DelAnnotation(noteID)
	},
}

var noteLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every stored note",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		notes, err := c.DumpAnnotations()
		if err != nil {
			return err
		}
		for _, n := range notes {
			fmt.Printf("%d\ttask %d\t%s\n", n.NoteID, n.ID, n.Note)
		}
		return nil
	},
}

func init() {
	noteCmd.AddCommand(noteAddCmd, noteRmCmd, noteLsCmd)
}
