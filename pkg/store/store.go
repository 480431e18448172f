package store

import (
	"errors"

	"github.com/quiverio/quiver/pkg/types"
)

// ErrDatasetExists is returned by WriteCollective when a dataset path has
// already been created — idempotent re-application is an error, not a
// silent no-op, because it indicates a JobQueue or tag-map bug upstream.
var ErrDatasetExists = errors.New("store: dataset already exists")

// ErrFormatMismatch is returned when opening a file that is not a
// recognized container.
var ErrFormatMismatch = errors.New("store: container format mismatch")

// Store is the contract consumed by both schedulers. Implementations must
// preserve the externally observable sequencing described in the package
// doc: no independent write before its matching collective write.
type Store interface {
	// Stations returns the sorted sequence of station ids present in the
	// container.
	Stations() ([]string, error)

	// TagsFor returns the set of tags available for station, derived from
	// its waveform dataset names.
	TagsFor(station string) (map[string]struct{}, error)

	// ReadWaveformAndStation reads every trace for (station, tag) plus
	// the station's metadata document, if any.
	ReadWaveformAndStation(station, tag string) (*types.Stream, *types.StationXML, error)

	// DescribeCollective asks the store to describe — not perform — the
	// collective write for one trace under outputTag, producing the
	// WriteIntent a worker gathers and replays on every rank.
	DescribeCollective(trace *types.Trace, outputTag string) (*types.WriteIntent, error)

	// WriteCollective creates the group and dataset described by intent.
	// Must be invoked with identical arguments simultaneously on every
	// rank under the distributed backend. Returns ErrDatasetExists if the
	// dataset path is already present.
	WriteCollective(intent *types.WriteIntent) error

	// WriteIndependent bulk-copies data into the dataset identified by
	// intent. May be called by any single process on its own time, but
	// only after WriteCollective for the same intent has completed on
	// every rank.
	WriteIndependent(intent *types.WriteIntent, data []float32) error

	// CopyStationXML copies station's metadata document from another
	// store. Collective-equivalent: performed once on a dedicated writer
	// before worker loops start.
	CopyStationXML(from Store, station string) error

	// WriteEvents writes the event catalog. Collective-equivalent, same
	// timing as CopyStationXML.
	WriteEvents(catalog *types.EventCatalog) error

	// Close releases the underlying file handle.
	Close() error
}

// CompressionConfig configures the compression policy a Store applies to
// every collective write it performs, and whether the distributed (bus)
// backend is in play — which forces compression and checksums off
// regardless of the requested codec.
type CompressionConfig struct {
	Codec     types.CompressionCodec
	Level     int
	Checksums bool
	BusMode   bool
}

// Resolve returns the effective CompressionPolicy, downgrading to
// CompressionNone with checksums disabled when BusMode is set.
func (c CompressionConfig) Resolve() types.CompressionPolicy {
	if c.BusMode {
		return types.CompressionPolicy{Codec: types.CompressionNone, Checksums: false}
	}
	return types.CompressionPolicy{Codec: c.Codec, Level: c.Level, Checksums: c.Checksums}
}
