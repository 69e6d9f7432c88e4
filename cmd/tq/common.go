package main

import (
	"os"

	"github.com/cdluminate/tasque/pkg/client"
	"github.com/cdluminate/tasque/pkg/store"
	"github.com/spf13/cobra"
)

// dbPathFrom resolves the --db flag against the default location.
func dbPathFrom(cmd *cobra.Command) (string, error) {
	p, _ := cmd.Flags().GetString("db")
	if p != "" {
		return p, nil
	}
	return store.DefaultDBPath()
}

// openClient opens the store at the resolved path and wraps it in a
// Client; the caller must call the returned closer when done.
func openClient(cmd *cobra.Command) (*client.Client, func(), error) {
	dbPath, err := dbPathFrom(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(dbPath, os.Getenv("TASQUE_RESOURCE"))
	if err != nil {
		return nil, nil, err
	}
	c := client.New(st, store.PIDPath(dbPath))
	return c, func() { _ = st.Close() }, nil
}
