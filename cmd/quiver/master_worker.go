package main

import (
	"github.com/spf13/cobra"
)

// masterCmd always dials in at rank 0; it differs from workerCmd only in
// the rank it resolves to, per runDistributed's contract.
var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run rank 0 of the distributed master/worker scheduler",
	Long: `Master drives the JobQueue and the collective-write protocol over
the message bus. Exactly one process in the fleet runs master; every other
process runs worker with a distinct --rank.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		peers, _ := cmd.Flags().GetStringSlice("peer")
		return runDistributed(cmd, 0, peers)
	},
}

// workerCmd runs any rank 1..N-1 of the distributed scheduler.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run one rank (1..N-1) of the distributed master/worker scheduler",
	Long: `Worker requests jobs from rank 0, applies the configured transform,
buffers results, and participates in the collective write protocol whenever
rank 0 forces a flush.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rank, _ := cmd.Flags().GetInt("rank")
		peers, _ := cmd.Flags().GetStringSlice("peer")
		if rank < 1 {
			rank = 1
		}
		return runDistributed(cmd, rank, peers)
	},
}

func init() {
	distributedFlags(masterCmd)

	distributedFlags(workerCmd)
	workerCmd.Flags().Int("rank", 1, "This process's rank in [1, len(peers))")
}
