package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/quiverio/quiver/pkg/log"
	"github.com/quiverio/quiver/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quiver",
	Short: "Quiver - concurrent processing engine for seismic container stores",
	Long: `Quiver walks every (station, tag) pair in a seismic container store,
applies a caller-supplied transform, and deposits the results into a new
store, either through a distributed master/worker protocol over a message
bus or through a local pool of goroutines.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"quiver version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve /metrics, /health, /ready, /live on (disabled if empty)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(workerCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// startMetricsServer launches the Prometheus/health HTTP endpoints in the
// background when --metrics-addr is set, matching the teacher's pattern
// of wiring metrics.Handler/HealthHandler onto a bare http.ServeMux.
func startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithComponent("cmd.quiver").Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.WithComponent("cmd.quiver").Info().Str("addr", addr).Msg("metrics endpoint listening")
}
