/*
Package types defines the core data structures used throughout quiver.

This package contains the fundamental types that describe the processing
engine's domain model: jobs, the streams and traces a transform reads and
produces, the write intents that carry a dataset's metadata across the
collective/independent boundary, and the bookkeeping records the schedulers
use to track workers and progress.

# Architecture

The types package is the foundation of quiver's data model. It defines:

  - Job identity (station, input tag) and its eventual result
  - Stream/Trace, the in-memory representation of seismic data moving
    through a transform
  - WriteIntent, the dataset descriptor that decouples metadata creation
    from bulk sample writes
  - Worker bookkeeping (rank or pool index, active jobs, completed count)

All types are designed to be:
  - Serializable (msgpack on the message bus, via pkg/scheduler's wire
    structs)
  - Immutable where reasonable (Job never changes after construction)
  - Self-documenting (clear field names, no hidden state)

# Core Types

Job Identity:
  - Job: a (station, input tag) pair, the unit of work dispatched by
    both schedulers
  - JobResult: a small summary attached to a Job once finished

Data:
  - Stream: an ordered collection of Traces for one station
  - Trace: one channel's sample array plus its metadata bundle
  - WriteIntent: a single dataset's shape/type/compression/attrs,
    produced on a worker and replayed identically on every rank

Bookkeeping:
  - WorkerRecord: a worker's identity, active jobs, and completed count

# Thread Safety

Types in this package carry no synchronization of their own; callers
(JobQueue, StreamBuffer, the schedulers) own whatever locking is needed
around them. A Job value, once constructed, is never mutated in place —
completion produces a new JobResult reference rather than editing fields
visible to other goroutines.

# See Also

  - pkg/queue for the JobQueue that tracks Job lifecycles
  - pkg/buffer for the StreamBuffer that holds produced Streams
  - pkg/store for how WriteIntent maps onto the on-disk container
*/
package types
