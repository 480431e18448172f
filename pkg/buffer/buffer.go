package buffer

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/quiverio/quiver/pkg/types"
)

// safetyMargin inflates the reported byte count by 1% over the raw
// estimate, so a worker backs off slightly before it actually hits
// MAX_BUFFER_BYTES.
const safetyMargin = 1.01

// StreamBuffer maps (station, input-tag) to the Stream a transform
// produced for it, plus an approximate byte size. Never larger than
// MAX_BUFFER_BYTES when the worker next requests a new job — exceeding it
// forces a write-request to the master.
type StreamBuffer struct {
	mu      sync.Mutex
	streams map[types.JobArgs]*types.Stream
}

// New returns an empty StreamBuffer.
func New() *StreamBuffer {
	return &StreamBuffer{streams: make(map[types.JobArgs]*types.Stream)}
}

// Put inserts the Stream produced for (station, tag). Rejects a nil
// stream — use Clear or simply don't call Put for jobs a transform
// dropped.
func (b *StreamBuffer) Put(key types.JobArgs, stream *types.Stream) error {
	if stream == nil {
		return fmt.Errorf("buffer: refusing to store nil stream for %s", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[key] = stream
	return nil
}

// Get returns the Stream buffered for key, if any.
func (b *StreamBuffer) Get(key types.JobArgs) (*types.Stream, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[key]
	return s, ok
}

// Len returns the number of (station, tag) entries currently buffered.
func (b *StreamBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

// Size returns an upper-bound byte count across every buffered stream,
// including per-trace overhead and raw sample payload, inflated by a 1%
// safety margin.
func (b *StreamBuffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sizeLocked()
}

func (b *StreamBuffer) sizeLocked() int64 {
	var total int64
	for _, s := range b.streams {
		total += s.ByteSize()
	}
	return int64(float64(total) * safetyMargin)
}

// HumanSize returns Size formatted for logs, e.g. "12 MB".
func (b *StreamBuffer) HumanSize() string {
	return humanize.Bytes(uint64(b.Size()))
}

// Entries returns a snapshot slice of (key, stream) pairs, used when
// flushing the whole buffer during the collective/independent write
// phases. The returned slice does not alias internal state.
func (b *StreamBuffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.streams))
	for k, v := range b.streams {
		out = append(out, Entry{Key: k, Stream: v})
	}
	return out
}

// Entry pairs a job's identity with its buffered Stream.
type Entry struct {
	Key    types.JobArgs
	Stream *types.Stream
}

// Clear removes every entry. Used after every successful flush to the
// output store.
func (b *StreamBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams = make(map[types.JobArgs]*types.Stream)
}
