/*
Package scheduler implements the two backends that drive a job set
against an output store: a distributed master/worker scheduler running
the collective-metadata protocol over a message bus, and a local
pool-of-workers scheduler for single-host runs with no bus available.

# Architecture

	┌──────────────────────── SCHEDULING ───────────────────────┐
	│                                                            │
	│   ┌───────────────┐              ┌────────────────────┐   │
	│   │  Distributed   │              │       Local         │   │
	│   │  rank 0 runs   │              │  bounded job chan   │   │
	│   │  the master    │              │  seeded with every  │   │
	│   │  loop; ranks   │              │  job + one poison   │   │
	│   │  1..N-1 run    │              │  pill per worker    │   │
	│   │  worker loops  │              │  thread/goroutine   │   │
	│   └───────┬───────┘              └─────────┬──────────┘   │
	│           │                                  │               │
	│           ▼                                  ▼               │
	│   collective phase                  per-file sync.Mutex      │
	│   (all_gather +                     (no collective phase     │
	│    write_collective in              needed: single writer    │
	│    rank order + barrier)            per file)                │
	└────────────────────────────────────────────────────────────┘

# Distributed scheduler

Rank 0 runs the master loop: it owns the JobQueue, dispatches jobs
FIFO in response to WORKER_REQUESTS_ITEM, and tracks which workers have
asked to flush (WORKER_REQUESTS_WRITE). Once at least half the fleet is
waiting to write — or any worker is waiting and every pill has already
been acknowledged — the master broadcasts MASTER_FORCES_WRITE and drives
the collective phase alongside every worker. Ranks 1..N-1 run the worker
loop: request a job, buffer the transformed Stream, and either drain into
an independent write during a collective phase or request one themselves
once their StreamBuffer crosses MaxBufferBytes.

The collective phase gathers every worker's WriteIntents (one per
buffered trace) via AllGather, then every rank — master included —
replays the full union through Store.WriteCollective in the same order,
satisfying the binary container's requirement that every process issue
matching metadata calls. A Barrier closes the phase before workers resume
requesting jobs.

# Local scheduler

Used when no bus is configured. A bounded channel is seeded with every
(station, tag) job followed by one poison pill per worker; worker count
is min(runtime.NumCPU(), job count). Each worker locks the input file,
reads and transforms, then locks the output file and performs a combined
collective+independent write, since there is exactly one writer at a
time. DetectForkSafety reports whether the process pool may use fork(2) safely;
Go's runtime never forks workers, so this always reports safe, but the
call site is kept because a future cgo-linked numerical backend would
need it (see DESIGN.md).

# See Also

  - pkg/bus for the MessageBus the distributed scheduler drives
  - pkg/queue for the JobQueue dispatch ledger
  - pkg/buffer for the per-worker StreamBuffer
  - pkg/store for WriteIntent and the collective/independent write split
*/
package scheduler
