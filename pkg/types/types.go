package types

import (
	"fmt"
	"time"
)

// Job is a (station, input-tag) pair, the unit of work dispatched by both
// schedulers. Immutable once created.
type Job struct {
	Station  string
	InputTag string
	Result   *JobResult
}

// Args returns the (station, tag) pair used as the job's identity when
// matching completions in the JobQueue.
func (j Job) Args() JobArgs {
	return JobArgs{Station: j.Station, InputTag: j.InputTag}
}

func (j Job) String() string {
	return fmt.Sprintf("%s/%s", j.Station, j.InputTag)
}

// JobArgs is the comparable identity of a Job, used as a map key and to
// match a worker's completion report back to its pending job.
type JobArgs struct {
	Station  string
	InputTag string
}

func (a JobArgs) String() string {
	return fmt.Sprintf("%s/%s", a.Station, a.InputTag)
}

// JobResult is the small summary attached to a Job on completion. Bulk
// sample data never lives here — it stays in the worker's StreamBuffer
// until flushed.
type JobResult struct {
	OutputTag   string
	TraceCount  int
	ByteCount   int64
	OutputPaths []string
	Skipped     bool // true if the job wrote nothing: read failed, transform failed, or no stream returned
}

// WorkerRecord is a scheduler's bookkeeping for one worker: its identity
// (an MPI-style rank under the distributed backend, a pool index under the
// local one), the jobs currently assigned to it, and how many it has
// finished.
type WorkerRecord struct {
	ID        string
	Active    []JobArgs
	Completed int
}

// Trace is a contiguous 1-D array of samples plus its metadata bundle. It
// is owned by its enclosing Stream.
type Trace struct {
	Network  string
	Station  string
	Location string
	Channel  string

	StartTime    int64 // nanoseconds since epoch
	SamplingRate float64
	Samples      []float32

	// Optional catalog reference ids, zero-padded ASCII resource
	// identifiers.
	EventID           string
	OriginID          string
	MagnitudeID       string
	FocalMechanismID  string

	// intent is the write intent produced for this trace during the
	// collective phase; stashed here so the worker can find it again
	// during the later independent-write phase. See WriteIntent.
	intent *WriteIntent
}

// SetIntent stashes the WriteIntent this trace was assigned during the
// collective phase.
func (t *Trace) SetIntent(wi *WriteIntent) { t.intent = wi }

// Intent returns the WriteIntent previously stashed via SetIntent, or nil
// if the collective phase has not run for this trace yet.
func (t *Trace) Intent() *WriteIntent { return t.intent }

// NumSamples returns len(Samples), the trace's sample count.
func (t *Trace) NumSamples() int { return len(t.Samples) }

// ByteSize is an upper-bound estimate of the trace's in-memory footprint:
// the raw sample payload plus a fixed per-trace metadata overhead.
func (t *Trace) ByteSize() int64 {
	const perTraceOverhead = 256 // metadata bundle, struct headers, slice header
	return int64(len(t.Samples))*4 + perTraceOverhead
}

// Stream is an ordered collection of Traces belonging to one station,
// produced by reading the input store for a (station, tag) and passed
// opaquely through the user transform.
type Stream struct {
	Station string
	Traces  []Trace
}

// ByteSize sums the ByteSize of every trace in the stream.
func (s *Stream) ByteSize() int64 {
	var total int64
	for i := range s.Traces {
		total += s.Traces[i].ByteSize()
	}
	return total
}

// Empty reports whether the stream has no traces — the signal a transform
// uses to say "nothing to write for this job".
func (s *Stream) Empty() bool {
	return s == nil || len(s.Traces) == 0
}

// CompressionCodec names a compression algorithm applied to collective
// writes. CompressionNone disables compression entirely, which the store
// also forces automatically when the distributed (bus) backend is active,
// since the on-disk format does not support compressed collective writes
// under concurrent writers.
type CompressionCodec string

const (
	CompressionNone CompressionCodec = "none"
	CompressionLZ4  CompressionCodec = "lz4"
)

// CompressionPolicy bundles the codec and level applied to a collective
// write, decided once at Store construction.
type CompressionPolicy struct {
	Codec     CompressionCodec
	Level     int
	Checksums bool // per-block fletcher32-style checksums
}

// WriteIntent fully describes a single dataset's creation, decoupling the
// metadata-modifying (collective) phase from the bulk-data (independent)
// phase. Produced on a worker, serialized across the bus, and replayed
// identically on every rank during the collective phase.
type WriteIntent struct {
	// ID uniquely identifies this intent for logging and metrics
	// correlation across the collective phase's gather/replay — it plays
	// no role in the store's own duplicate-dataset detection, which keys
	// off Key() instead.
	ID          string
	GroupPath   string
	Dataset     string
	Shape       []int
	ElemType    string
	Compression CompressionPolicy
	Attrs       map[string]string
}

// Key returns the fully-qualified dataset path this intent describes,
// used to detect duplicate collective writes.
func (w WriteIntent) Key() string {
	return w.GroupPath + "/" + w.Dataset
}

// StationXML is an opaque per-station metadata document; parsing it is an
// external collaborator's concern. The engine only ever copies it byte
// for byte between stores.
type StationXML struct {
	Station string
	Data    []byte
}

// EventCatalog is an opaque seismic event catalog, copied byte for byte
// from input store to output store before any worker loop starts.
type EventCatalog struct {
	Data []byte
}

// TagMap maps an input-tag string to an output-tag string. Input tags
// absent from the map are silently skipped during enumeration.
type TagMap map[string]string

// TransformFunc is the caller-supplied transform: given a Stream and its
// station's metadata, it returns a transformed Stream, or nil to mean
// "drop this job's output". It may return an error; a returned error is
// logged and the job is dropped, never fatal to the run.
type TransformFunc func(stream *Stream, station *StationXML) (*Stream, error)

// clockNow is an overridable time source. Nothing reads it at present:
// the queue and schedulers call time.Now and time.NewTicker directly.
var clockNow = time.Now
