package main

import (
	"context"
	"fmt"

	"github.com/quiverio/quiver/pkg/bus"
	"github.com/quiverio/quiver/pkg/config"
	"github.com/quiverio/quiver/pkg/events"
	"github.com/quiverio/quiver/pkg/log"
	"github.com/quiverio/quiver/pkg/process"
	"github.com/quiverio/quiver/pkg/transform"
	"github.com/spf13/cobra"
)

// runDistributed dials a TCPBus for rank among peers and drives the
// Processing API's distributed backend to completion. Shared by the
// master (always rank 0) and worker (rank 1..N-1) subcommands, which
// differ only in how they resolve rank.
func runDistributed(cmd *cobra.Command, rank int, peers []string) error {
	if len(peers) < 2 {
		return fmt.Errorf("quiver: distributed backend needs at least 2 --peer addresses, got %d", len(peers))
	}

	configPath, _ := cmd.Flags().GetString("config")
	transformName, _ := cmd.Flags().GetString("transform")
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

	logger := log.WithRank(rank)
	logger.Info().Strs("peers", peers).Msg("dialing message bus")

	ctx := context.Background()
	tcpBus, err := bus.DialTCPBus(ctx, rank, peers)
	if err != nil {
		return fmt.Errorf("quiver: dial bus: %w", err)
	}
	defer tcpBus.Close()

	var b bus.Bus = tcpBus
	if traceBus, _ := cmd.Flags().GetBool("trace-bus"); traceBus {
		b = bus.NewTracingBus(tcpBus)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	logSub := broker.Subscribe()
	defer broker.Unsubscribe(logSub)
	go func() {
		for ev := range logSub {
			logger.Debug().Str("event", string(ev.Type)).Str("message", ev.Message).Msg("engine event")
		}
	}()

	pcfg := process.Config{
		InputPath:       cfg.InputPath,
		OutputPath:      cfg.OutputPath,
		TagMap:          cfg.TagMap,
		Compression:     cfg.StoreCompression(),
		Bus:             b,
		SchedulerConfig: cfg.SchedulerConfig(),
		Events:          broker,
	}

	logger.Info().Msg("starting distributed run")
	if err := process.Run(ctx, pcfg, tf); err != nil {
		return fmt.Errorf("quiver: distributed run: %w", err)
	}
	logger.Info().Msg("distributed run complete")
	return nil
}

func distributedFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to the quiver YAML config document (required)")
	cmd.Flags().String("transform", "identity", "Built-in transform to apply: identity, demean, gain2x")
	cmd.Flags().StringSlice("peer", nil, "Message bus address for every rank, in rank order (repeatable, required)")
	cmd.Flags().Bool("trace-bus", false, "Log every message sent/received on the message bus at debug level")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("peer")
}
