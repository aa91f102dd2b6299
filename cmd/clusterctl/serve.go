package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/clusterrouter/pkg/log"
	"github.com/cuemby/clusterrouter/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as the resident peer: expose metrics and sweep orphaned tasks",
	Long: `serve keeps the task store open, periodically refreshes the task-distribution
and peer-reachability gauges, and exposes them on /metrics. It does not accept
task submissions itself — this process is the background half of the peer;
submissions arrive through the tool-call surface embedded in the caller.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		d, err := wire()
		if err != nil {
			return err
		}
		defer d.store.Close()

		collector := metrics.NewCollector(d.store, d.surface.Aggregator())
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(version)
		metrics.RegisterComponent("store", true, "open")
		metrics.RegisterComponent("aggregator", true, "ready")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithComponent("serve").Error().Err(err).Msg("metrics server exited")
			}
		}()
		fmt.Printf("metrics listening on http://%s/metrics\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println("shutting down")
		return srv.Close()
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus metrics endpoint")
	rootCmd.AddCommand(serveCmd)
}
