package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"os"

	"github.com/cdluminate/tasque/pkg/task"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		tasks, err := c.DumpTasks()
		if err != nil {
			return err
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tPRI\tRSC\tCMD")
		for _, t := range tasks {
			fmt.Fprintf(w, "%d\t%s\t%d\t%v\t%s\n", t.ID, task.Stat(t), t.Pri, t.RSC, t.Cmd)
		}
		return w.Flush()
	},
}
