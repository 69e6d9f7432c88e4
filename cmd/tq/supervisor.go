package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cdluminate/tasque/pkg/log"
	"github.com/cdluminate/tasque/pkg/metrics"
	"github.com/cdluminate/tasque/pkg/resource"
	"github.com/cdluminate/tasque/pkg/store"
	"github.com/cdluminate/tasque/pkg/supervisor"
	"github.com/cdluminate/tasque/pkg/worker"
	"github.com/spf13/cobra"
)

// supervisorCmd is the hidden re-exec target client.Start() launches:
// it opens the store, builds the configured resource plugin, and
// blocks running the dispatcher loop until SIGTERM. Hidden because it
// is an implementation detail of Start(), never invoked directly by a
// user.
var supervisorCmd = &cobra.Command{
	Use:    "__supervisor",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := dbPathFrom(cmd)
		if err != nil {
			return err
		}
		st, err := store.Open(dbPath, os.Getenv("TASQUE_RESOURCE"))
		if err != nil {
			return err
		}
		defer st.Close()

		resourceName, err := st.Resource()
		if err != nil {
			return err
		}
		plugin, err := resource.New(resourceName)
		if err != nil {
			return err
		}

		self, err := os.Executable()
		if err != nil {
			return err
		}

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		if metricsAddr != "" {
			go func() {
				srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Logger.Error().Err(err).Msg("metrics server exited")
				}
			}()
		}

		sv := supervisor.New(st, plugin, store.PIDPath(dbPath), self)

		ctx, cancel := context.WithCancel(context.Background())
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			<-sigs
			cancel()
		}()

		return sv.Run(ctx)
	},
}

func init() {
	supervisorCmd.Flags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
}

// workerCmd is the hidden re-exec target the supervisor's admit()
// step launches for each admitted task: "tq __worker ID". Hidden for
// the same reason as __supervisor.
var workerCmd = &cobra.Command{
	Use:    "__worker ID",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("__worker: invalid task id %q", args[0])
		}
		dbPath, err := dbPathFrom(cmd)
		if err != nil {
			return err
		}
		st, err := store.Open(dbPath, os.Getenv("TASQUE_RESOURCE"))
		if err != nil {
			return err
		}
		defer st.Close()

		h := worker.New(st)
		return h.Run(id)
	},
}
