package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/quiverio/quiver/pkg/config"
	"github.com/quiverio/quiver/pkg/log"
	"github.com/quiverio/quiver/pkg/process"
	"github.com/quiverio/quiver/pkg/transform"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Processing API against a single container store, single process",
	Long: `Run loads a config document and drives the local (goroutine-pool)
scheduler end to end in this one process. Use master/worker instead to
spread the same job set across a fleet over the message bus.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		transformName, _ := cmd.Flags().GetString("transform")
		workers, _ := cmd.Flags().GetInt("workers")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		startMetricsServer(metricsAddr)

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		tf, err := transform.Lookup(transformName)
		if err != nil {
			return err
		}

		logger := log.WithComponent("cmd.quiver.run")
		logger.Info().Str("input", cfg.InputPath).Str("output", cfg.OutputPath).Msg("starting local run")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pcfg := process.Config{
			InputPath:    cfg.InputPath,
			OutputPath:   cfg.OutputPath,
			TagMap:       cfg.TagMap,
			Compression:  cfg.StoreCompression(),
			LocalWorkers: workers,
		}
		if pcfg.LocalWorkers == 0 {
			pcfg.LocalWorkers = cfg.LocalWorkers
		}

		if err := process.Run(ctx, pcfg, tf); err != nil {
			return fmt.Errorf("quiver run: %w", err)
		}
		logger.Info().Msg("run complete")
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", "", "Path to the quiver YAML config document (required)")
	runCmd.Flags().String("transform", "identity", "Built-in transform to apply: identity, demean, gain2x")
	runCmd.Flags().Int("workers", 0, "Local scheduler pool size override (0 = use local_workers from the config; if that is also 0, min(NumCPU, jobs))")
	runCmd.MarkFlagRequired("config")
}
