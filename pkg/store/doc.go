/*
Package store defines the Store contract consumed by both schedulers and
a BoltDB-backed implementation of it.

A Store gives typed read/write access to the seismic container: waveforms
grouped by station, per-station metadata, and an event catalog. It has
no operations for auxiliary datasets. It distinguishes *collective* operations, which must be
invoked identically on every rank before any rank proceeds past them, from
*independent* operations, which a single process may perform on its own
time. The distinction exists because the underlying container's metadata
tree — group and dataset creation — requires every participating process
to issue matching calls, whereas raw sample writes into already-sized
datasets can proceed independently.

# Architecture

	┌──────────────────── CONTAINER STORE ─────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <path>                             │          │
	│  │  - Format: B+tree with MVCC (bbolt)          │          │
	│  │  - Transactions: ACID                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ stations   (StationXML)    │             │          │
	│  │  │ events     (fixed key)     │             │          │
	│  │  │ waveforms  (dataset path)  │             │          │
	│  │  │ container  (format marker) │             │          │
	│  │  └────────────────────────────┘             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Collective / Independent              │          │
	│  │  - WriteCollective: create dataset metadata  │          │
	│  │    (every rank, identical call, idempotent-  │          │
	│  │    checked)                                  │          │
	│  │  - WriteIndependent: bulk-copy sample array   │          │
	│  │    into an already-created dataset           │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Dataset naming

Waveform datasets are named net.sta.loc.cha__start__end__tag, where start
and end are UTC times formatted as YYYY-MM-DDTHH:MM:SS, with no zone
suffix. The final __-delimited field is the tag;
TagsFor derives the set of available tags for a station by splitting each
dataset name on "__" and taking the last component.

# Compression

Collective writes are decorated with a CompressionPolicy chosen at Store
construction. When BusMode is set (the distributed backend is in use) the
store forces compression and per-block checksums off regardless of the
requested policy, since the parallel container format does not support
either under concurrent collective writers, and logs a warning exactly
once.

# See Also

  - pkg/scheduler for how WriteCollective/WriteIndependent map onto the
    distributed collective-phase protocol
  - pkg/types for WriteIntent, Stream, and Trace
*/
package store
