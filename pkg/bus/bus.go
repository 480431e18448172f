package bus

import (
	"context"
	"errors"
)

// Tag names the purpose of a message on the bus. A Bus implementation
// treats a message's payload as opaque bytes; only the caller interprets
// it, keyed off Tag.
type Tag int

const (
	// MASTER_FORCES_WRITE is sent master-to-worker to start the
	// collective write phase.
	MasterForcesWrite Tag = iota + 1
	// MASTER_SENDS_ITEM carries either a JobArgs or the poison pill
	// sentinel, master-to-worker, in reply to WORKER_REQUESTS_ITEM.
	MasterSendsItem
	// ALL_DONE is sent master-to-worker once every job in the JobQueue
	// has finished.
	AllDone
	// WORKER_REQUESTS_ITEM is sent worker-to-master when the worker has
	// no outstanding job request in flight.
	WorkerRequestsItem
	// WORKER_REQUESTS_WRITE is sent worker-to-master when the worker's
	// StreamBuffer needs to flush.
	WorkerRequestsWrite
	// WORKER_DONE_WITH_ITEM carries (JobArgs, JobResult) worker-to-master.
	WorkerDoneWithItem
	// POISON_PILL_RECEIVED acknowledges a worker's poison pill.
	PoisonPillReceived
)

func (t Tag) String() string {
	switch t {
	case MasterForcesWrite:
		return "MASTER_FORCES_WRITE"
	case MasterSendsItem:
		return "MASTER_SENDS_ITEM"
	case AllDone:
		return "ALL_DONE"
	case WorkerRequestsItem:
		return "WORKER_REQUESTS_ITEM"
	case WorkerRequestsWrite:
		return "WORKER_REQUESTS_WRITE"
	case WorkerDoneWithItem:
		return "WORKER_DONE_WITH_ITEM"
	case PoisonPillReceived:
		return "POISON_PILL_RECEIVED"
	default:
		return "UNKNOWN_TAG"
	}
}

// ErrNoMessage names the no-message condition. Probe does not return it:
// an empty queue is reported as ok=false with a nil error.
var ErrNoMessage = errors.New("bus: no message available")

// Envelope is one message in flight: its sender, its Tag, and an opaque
// msgpack-encoded payload.
type Envelope struct {
	Source  int
	Tag     Tag
	Payload []byte
}

// Bus is the transport the distributed scheduler drives its master/worker
// protocol over. Every method is safe for concurrent use by multiple
// goroutines within the same rank, except where noted.
type Bus interface {
	// Rank returns this process's rank, in [0, Size).
	Rank() int

	// Size returns the total number of ranks participating.
	Size() int

	// Send delivers payload to dest tagged with tag. Non-blocking: it
	// queues the message and returns once delivery has been handed off,
	// not once the peer has consumed it.
	Send(ctx context.Context, dest int, tag Tag, payload []byte) error

	// Probe reports whether a message is queued for this rank without
	// consuming it. Returns ok=false and a nil error when none is
	// queued.
	Probe(ctx context.Context) (Envelope, bool, error)

	// RecvAny blocks until any message addressed to this rank is
	// available, then consumes and returns it.
	RecvAny(ctx context.Context) (Envelope, error)

	// Recv blocks until a message from source tagged tag is available,
	// then consumes and returns it. Messages from other sources or with
	// other tags are left queued.
	Recv(ctx context.Context, source int, tag Tag) (Envelope, error)

	// WaitAll sends payload tagged tag to every rank in dests and
	// returns once every send has been handed off.
	WaitAll(ctx context.Context, dests []int, tag Tag, payload []byte) error

	// Barrier blocks until every rank has called Barrier.
	Barrier(ctx context.Context) error

	// AllGather exchanges payload with every rank and returns the
	// gathered values ordered by rank, including this rank's own.
	// Every rank must call AllGather for any of them to return.
	AllGather(ctx context.Context, payload []byte) ([][]byte, error)

	// Close releases any resources (connections, goroutines) the Bus
	// holds. Ranks must have exited their protocol loops first.
	Close() error
}
