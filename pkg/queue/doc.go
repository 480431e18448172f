// Package queue implements the JobQueue: the in-memory ledger of pending,
// active, and finished jobs that both schedulers drive to completion.
//
// A job is always in exactly one of three disjoint sets — pending,
// active-on-worker-W, or finished — and moves pending → active on
// dispatch, active → finished on a worker's completion report. The queue
// also tracks poison-pill acknowledgements so the distributed master knows
// when every worker has drained.
package queue
