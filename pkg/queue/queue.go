package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quiverio/quiver/pkg/types"
)

// ErrProtocolViolation is returned when a worker's message sequence
// breaks the queue's single-pill-per-worker contract — currently, a
// second poison-pill acknowledgement from the same worker.
var ErrProtocolViolation = errors.New("queue: protocol violation")

// JobQueue is the in-memory ledger of pending/active/finished jobs for a
// fixed worker set. Constructed once with the full job list; not safe to
// add jobs after construction.
type JobQueue struct {
	mu sync.Mutex

	pending []types.Job
	active  map[string]map[types.JobArgs]types.Job // worker -> args -> job
	done    map[types.JobArgs]types.Job

	workers      map[string]*types.WorkerRecord
	pillsAcked   map[string]bool
	total        int
	startedAt    time.Time
}

// New constructs a JobQueue over the full job list and the set of worker
// identities (MPI ranks as strings, or pool indices).
func New(jobs []types.Job, workers []string) *JobQueue {
	q := &JobQueue{
		pending:    append([]types.Job(nil), jobs...),
		active:     make(map[string]map[types.JobArgs]types.Job),
		done:       make(map[types.JobArgs]types.Job),
		workers:    make(map[string]*types.WorkerRecord),
		pillsAcked: make(map[string]bool),
		total:      len(jobs),
		startedAt:  time.Now(),
	}
	for _, w := range workers {
		q.active[w] = make(map[types.JobArgs]types.Job)
		q.workers[w] = &types.WorkerRecord{ID: w}
	}
	return q
}

// Empty reports whether there are no more pending jobs to dispatch.
func (q *JobQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}

// GetJobForWorker removes the head job (FIFO order), records it as active
// for worker, and returns it. Fails if the queue is empty — callers must
// check Empty first, or send a poison pill instead.
func (q *JobQueue) GetJobForWorker(worker string) (types.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return types.Job{}, fmt.Errorf("queue: no pending jobs for worker %s", worker)
	}

	job := q.pending[0]
	q.pending = q.pending[1:]

	if _, ok := q.active[worker]; !ok {
		q.active[worker] = make(map[types.JobArgs]types.Job)
	}
	q.active[worker][job.Args()] = job

	rec := q.workerRecordLocked(worker)
	rec.Active = append(rec.Active, job.Args())

	return job, nil
}

// Complete locates the unique active job for worker whose arguments equal
// args, moves it to finished, and stores result. Fails if zero or more
// than one match — both indicate a protocol bug upstream.
func (q *JobQueue) Complete(args types.JobArgs, result *types.JobResult, worker string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	active, ok := q.active[worker]
	if !ok {
		return fmt.Errorf("queue: unknown worker %s reported completion", worker)
	}

	job, ok := active[args]
	if !ok {
		return fmt.Errorf("queue: worker %s reported completion for %s which is not active on it", worker, args)
	}

	delete(active, args)
	if _, already := q.done[args]; already {
		return fmt.Errorf("queue: job %s already finished, duplicate completion from worker %s", args, worker)
	}

	job.Result = result
	q.done[args] = job

	rec := q.workerRecordLocked(worker)
	rec.Completed++
	rec.Active = removeArgs(rec.Active, args)

	return nil
}

// PoisonPillReceived records that a worker has acknowledged end-of-queue.
// A second acknowledgement from the same worker is a protocol error.
func (q *JobQueue) PoisonPillReceived(worker string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pillsAcked[worker] {
		return fmt.Errorf("%w: worker %s acknowledged poison pill twice", ErrProtocolViolation, worker)
	}
	q.pillsAcked[worker] = true
	return nil
}

// AllDone reports whether every job originally enqueued has finished.
func (q *JobQueue) AllDone() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.done) == q.total
}

// AllPoisonPillsReceived reports whether every known worker has
// acknowledged the poison pill.
func (q *JobQueue) AllPoisonPillsReceived() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.workers) == 0 {
		return true
	}
	for w := range q.workers {
		if !q.pillsAcked[w] {
			return false
		}
	}
	return true
}

// Stats are read-only runtime statistics for human-readable logging; they
// are not part of the dispatch protocol.
type Stats struct {
	Total     int
	Pending   int
	Active    int
	Finished  int
	Elapsed   time.Duration
	PerWorker map[string]types.WorkerRecord
}

// Snapshot returns the current Stats.
func (q *JobQueue) Snapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := 0
	for _, m := range q.active {
		active += len(m)
	}

	perWorker := make(map[string]types.WorkerRecord, len(q.workers))
	for id, rec := range q.workers {
		perWorker[id] = *rec
	}

	return Stats{
		Total:     q.total,
		Pending:   len(q.pending),
		Active:    active,
		Finished:  len(q.done),
		Elapsed:   time.Since(q.startedAt),
		PerWorker: perWorker,
	}
}

func (q *JobQueue) workerRecordLocked(worker string) *types.WorkerRecord {
	rec, ok := q.workers[worker]
	if !ok {
		rec = &types.WorkerRecord{ID: worker}
		q.workers[worker] = rec
	}
	return rec
}

func removeArgs(in []types.JobArgs, target types.JobArgs) []types.JobArgs {
	out := in[:0]
	for _, a := range in {
		if a != target {
			out = append(out, a)
		}
	}
	return out
}
