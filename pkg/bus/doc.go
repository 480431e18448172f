/*
Package bus defines the message-passing fabric the distributed scheduler
runs its master/worker protocol over, and two implementations of it.

A Bus gives every rank a uniform send/receive/collective surface
regardless of whether the other ranks live in the same process or across
a network. The distributed scheduler (pkg/scheduler) is written entirely
against the Bus interface; it never knows whether Loopback or TCPBus is
underneath.

# Architecture

	┌────────────────────── MESSAGE BUS ───────────────────────┐
	│                                                            │
	│   bus.Bus interface                                        │
	│     Send(ctx, dest, tag, payload) error                    │
	│     Probe(ctx) (Envelope, bool, error)                     │
	│     RecvAny(ctx) (Envelope, error)                          │
	│     Recv(ctx, source, tag) (Envelope, error)                │
	│     WaitAll(ctx, dests, tag, payload) error                 │
	│     AllGather(ctx, payload) ([][]byte, error)                │
	│     Barrier(ctx) error                                       │
	│     Rank() int / Size() int                                  │
	│                                                            │
	│   ┌───────────────┐          ┌───────────────────┐        │
	│   │   Loopback     │          │     TCPBus          │        │
	│   │  in-process,   │          │  length-prefixed    │        │
	│   │  buffered      │          │  msgpack frames     │        │
	│   │  channels      │          │  over net.Conn       │        │
	│   └───────────────┘          └───────────────────┘        │
	└────────────────────────────────────────────────────────────┘

# Tags

The Tag enum is the complete vocabulary of the master/worker protocol:
MASTER_FORCES_WRITE, MASTER_SENDS_ITEM, ALL_DONE, WORKER_REQUESTS_ITEM,
WORKER_REQUESTS_WRITE, WORKER_DONE_WITH_ITEM, POISON_PILL_RECEIVED. A Bus
implementation never interprets a Tag's payload; it is opaque bytes to
the transport.

# Collective operations

Barrier and AllGather must be invoked by every rank before any of them
returns — a rank blocked in Barrier waits for every other rank to reach
its own Barrier call. Both are built out of the same Send/Recv primitives
a TCPBus uses for ordinary point-to-point messages, the way
hashicorp/raft's network transport layers RPCs over a plain connection
pool rather than a dedicated collective protocol.

# See Also

  - pkg/scheduler for the master/worker loops that drive a Bus
  - pkg/types for the job/result payloads a Bus carries
*/
package bus
