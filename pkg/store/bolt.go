package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"github.com/quiverio/quiver/pkg/types"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/quiverio/quiver/pkg/log"
)

var (
	bucketStations  = []byte("stations")
	bucketEvents    = []byte("events")
	bucketWaveforms = []byte("waveforms")
	bucketMeta      = []byte("meta")
	bucketData      = []byte("data")
	bucketContainer = []byte("container")

	eventsKey = []byte("catalog")
	formatKey = []byte("format")
)

// formatMarker identifies a bbolt file as a quiver container and pins the
// on-disk layout it was written under. Bump this if bucket layout or key
// conventions ever change in a way old readers can't tolerate.
const formatMarker = "quiver-bolt-v1"

const datasetTimeLayout = "2006-01-02T15:04:05"

// datasetMeta is the JSON record kept alongside a waveform dataset: enough
// to reconstruct the Trace exactly, plus the WriteIntent fields needed to
// replay the collective write on every rank.
type datasetMeta struct {
	Network  string
	Station  string
	Location string
	Channel  string
	Tag      string

	StartTimeNanos int64
	SamplingRate   float64

	EventID          string
	OriginID         string
	MagnitudeID      string
	FocalMechanismID string

	Shape       []int
	ElemType    string
	Compression types.CompressionPolicy
	Attrs       map[string]string
}

// BoltStore implements Store using a bbolt-backed container, one B+tree
// file per store, with one nested bucket group per station mirroring the
// container's station-group layout.
type BoltStore struct {
	db     *bolt.DB
	logger zerolog.Logger

	compression CompressionConfig
}

// Open opens (creating if absent) a BoltDB-backed container at path.
func Open(path string, compression CompressionConfig) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		container := tx.Bucket(bucketContainer)
		if container == nil {
			// No container bucket: either a brand new file, or a pre-existing
			// bbolt file that never went through quiver's Open. Distinguish
			// the two by whether any of our other top-level buckets already
			// exist — a fresh file has none of them either.
			foreign := tx.Bucket(bucketStations) != nil || tx.Bucket(bucketEvents) != nil || tx.Bucket(bucketWaveforms) != nil
			if foreign {
				return fmt.Errorf("%w: bbolt file has quiver bucket names but no format marker", ErrFormatMismatch)
			}
			container, err = tx.CreateBucket(bucketContainer)
			if err != nil {
				return fmt.Errorf("create bucket %s: %w", bucketContainer, err)
			}
			if err := container.Put(formatKey, []byte(formatMarker)); err != nil {
				return fmt.Errorf("write format marker: %w", err)
			}
		} else if got := string(container.Get(formatKey)); got != formatMarker {
			return fmt.Errorf("%w: got %q, want %q", ErrFormatMismatch, got, formatMarker)
		}

		for _, b := range [][]byte{bucketStations, bucketEvents, bucketWaveforms} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db:          db,
		logger:      log.WithComponent("store"),
		compression: compression,
	}
	if compression.BusMode && (compression.Codec != types.CompressionNone || compression.Checksums) {
		s.logger.Warn().Msg("distributed backend in use: compression and per-block checksums disabled for collective writes")
	}
	return s, nil
}

// Close releases the underlying file handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Stations returns the sorted sequence of station ids present in the
// container.
func (s *BoltStore) Stations() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		wv := tx.Bucket(bucketWaveforms)
		return wv.ForEach(func(name, v []byte) error {
			if v == nil { // nested bucket, i.e. a station group
				out = append(out, string(name))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// TagsFor returns the set of tags available for station, derived from its
// waveform dataset names.
func (s *BoltStore) TagsFor(station string) (map[string]struct{}, error) {
	tags := make(map[string]struct{})
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := s.stationMetaBucket(tx, station)
		if meta == nil {
			return nil
		}
		return meta.ForEach(func(k, v []byte) error {
			tags[lastField(string(k))] = struct{}{}
			return nil
		})
	})
	return tags, err
}

// ReadWaveformAndStation reads every trace for (station, tag) plus the
// station's metadata document, if any.
func (s *BoltStore) ReadWaveformAndStation(station, tag string) (*types.Stream, *types.StationXML, error) {
	stream := &types.Stream{Station: station}

	err := s.db.View(func(tx *bolt.Tx) error {
		meta := s.stationMetaBucket(tx, station)
		data := s.stationDataBucket(tx, station)
		if meta == nil || data == nil {
			return nil
		}

		return meta.ForEach(func(k, v []byte) error {
			if lastField(string(k)) != tag {
				return nil
			}
			var m datasetMeta
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode dataset meta %s: %w", k, err)
			}
			raw := data.Get(k)
			samples, err := decodeSamples(raw, m.Compression)
			if err != nil {
				return fmt.Errorf("decode dataset samples %s: %w", k, err)
			}
			stream.Traces = append(stream.Traces, types.Trace{
				Network:          m.Network,
				Station:          m.Station,
				Location:         m.Location,
				Channel:          m.Channel,
				StartTime:        m.StartTimeNanos,
				SamplingRate:     m.SamplingRate,
				Samples:          samples,
				EventID:          m.EventID,
				OriginID:         m.OriginID,
				MagnitudeID:      m.MagnitudeID,
				FocalMechanismID: m.FocalMechanismID,
			})
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	xml, err := s.StationXMLBytes(station)
	if err != nil {
		return nil, nil, err
	}
	var stationXML *types.StationXML
	if xml != nil {
		stationXML = &types.StationXML{Station: station, Data: xml}
	}

	return stream, stationXML, nil
}

// DescribeCollective asks the store to describe — not perform — the
// collective write for one trace under outputTag.
func (s *BoltStore) DescribeCollective(trace *types.Trace, outputTag string) (*types.WriteIntent, error) {
	stationID := trace.Network + "." + trace.Station
	start := time.Unix(0, trace.StartTime).UTC()
	duration := time.Duration(0)
	if trace.SamplingRate > 0 && len(trace.Samples) > 0 {
		duration = time.Duration(float64(len(trace.Samples))/trace.SamplingRate*float64(time.Second))
	}
	end := start.Add(duration)

	dataset := fmt.Sprintf("%s.%s.%s.%s__%s__%s__%s",
		trace.Network, trace.Station, trace.Location, trace.Channel,
		start.Format(datasetTimeLayout), end.Format(datasetTimeLayout), outputTag)

	policy := s.compression.Resolve()

	return &types.WriteIntent{
		ID:          uuid.New().String(),
		GroupPath:   stationID,
		Dataset:     dataset,
		Shape:       []int{len(trace.Samples)},
		ElemType:    "float32",
		Compression: policy,
		Attrs: map[string]string{
			"network":            trace.Network,
			"station":            trace.Station,
			"location":           trace.Location,
			"channel":            trace.Channel,
			"tag":                outputTag,
			"starttime":          strconv.FormatInt(trace.StartTime, 10),
			"sampling_rate":      strconv.FormatFloat(trace.SamplingRate, 'g', -1, 64),
			"event_id":           trace.EventID,
			"origin_id":          trace.OriginID,
			"magnitude_id":       trace.MagnitudeID,
			"focal_mechanism_id": trace.FocalMechanismID,
		},
	}, nil
}

// WriteCollective creates the group and dataset described by intent.
func (s *BoltStore) WriteCollective(intent *types.WriteIntent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		wv := tx.Bucket(bucketWaveforms)
		stationBucket, err := wv.CreateBucketIfNotExists([]byte(intent.GroupPath))
		if err != nil {
			return err
		}
		meta, err := stationBucket.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := stationBucket.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}

		key := []byte(intent.Dataset)
		if meta.Get(key) != nil {
			return fmt.Errorf("%w: %s", ErrDatasetExists, intent.Key())
		}

		startNanos, samplingRate := attrTimes(intent.Attrs)
		record := datasetMeta{
			Network:          intent.Attrs["network"],
			Station:          intent.Attrs["station"],
			Location:         intent.Attrs["location"],
			Channel:          intent.Attrs["channel"],
			Tag:              intent.Attrs["tag"],
			StartTimeNanos:   startNanos,
			SamplingRate:     samplingRate,
			EventID:          intent.Attrs["event_id"],
			OriginID:         intent.Attrs["origin_id"],
			MagnitudeID:      intent.Attrs["magnitude_id"],
			FocalMechanismID: intent.Attrs["focal_mechanism_id"],
			Shape:            intent.Shape,
			ElemType:         intent.ElemType,
			Compression:      intent.Compression,
			Attrs:            intent.Attrs,
		}
		buf, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := meta.Put(key, buf); err != nil {
			return err
		}
		s.logger.Debug().Str("intent_id", intent.ID).Str("dataset", intent.Key()).Msg("collective write applied")
		return nil
	})
}

// WriteIndependent bulk-copies data into the dataset identified by intent.
func (s *BoltStore) WriteIndependent(intent *types.WriteIntent, data []float32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		wv := tx.Bucket(bucketWaveforms)
		stationBucket := wv.Bucket([]byte(intent.GroupPath))
		if stationBucket == nil {
			return fmt.Errorf("store: independent write for %s before collective write", intent.Key())
		}
		dataBucket := stationBucket.Bucket(bucketData)
		if dataBucket == nil {
			return fmt.Errorf("store: independent write for %s before collective write", intent.Key())
		}

		raw, err := encodeSamples(data, intent.Compression)
		if err != nil {
			return err
		}
		return dataBucket.Put([]byte(intent.Dataset), raw)
	})
}

// StationXMLBytes returns the raw StationXML document for station, or nil
// if none is present. Used by CopyStationXML on a peer store.
func (s *BoltStore) StationXMLBytes(station string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStations)
		v := b.Get([]byte(station))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// CopyStationXML copies station's metadata document from another store.
func (s *BoltStore) CopyStationXML(from Store, station string) error {
	src, ok := from.(interface {
		StationXMLBytes(string) ([]byte, error)
	})
	if !ok {
		return fmt.Errorf("store: source does not expose station metadata directly")
	}
	data, err := src.StationXMLBytes(station)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("store: no station metadata for %s", station)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStations).Put([]byte(station), data)
	})
}

// WriteEvents writes the event catalog.
func (s *BoltStore) WriteEvents(catalog *types.EventCatalog) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(eventsKey, catalog.Data)
	})
}

// Events returns the stored event catalog, or nil if none has been
// written yet.
func (s *BoltStore) Events() (*types.EventCatalog, error) {
	var out *types.EventCatalog
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEvents).Get(eventsKey)
		if v != nil {
			out = &types.EventCatalog{Data: append([]byte(nil), v...)}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) stationMetaBucket(tx *bolt.Tx, station string) *bolt.Bucket {
	wv := tx.Bucket(bucketWaveforms)
	sb := wv.Bucket([]byte(station))
	if sb == nil {
		return nil
	}
	return sb.Bucket(bucketMeta)
}

func (s *BoltStore) stationDataBucket(tx *bolt.Tx, station string) *bolt.Bucket {
	wv := tx.Bucket(bucketWaveforms)
	sb := wv.Bucket([]byte(station))
	if sb == nil {
		return nil
	}
	return sb.Bucket(bucketData)
}

// lastField returns the final "__"-delimited component of a dataset
// name — the tag.
func lastField(datasetName string) string {
	parts := strings.Split(datasetName, "__")
	return parts[len(parts)-1]
}

func attrTimes(attrs map[string]string) (startNanos int64, samplingRate float64) {
	startNanos, _ = strconv.ParseInt(attrs["starttime"], 10, 64)
	samplingRate, _ = strconv.ParseFloat(attrs["sampling_rate"], 64)
	return startNanos, samplingRate
}

// encodeSamples prefixes an lz4-compressed block with the length of its
// plain (pre-compression) form, since lz4.UncompressBlock requires a
// preallocated destination of exactly that size.
func encodeSamples(data []float32, policy types.CompressionPolicy) ([]byte, error) {
	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.LittleEndian, data); err != nil {
		return nil, err
	}
	if policy.Codec != types.CompressionLZ4 {
		return raw.Bytes(), nil
	}

	plain := raw.Bytes()
	compressed := make([]byte, lz4.CompressBlockBound(len(plain)))
	written, err := lz4.CompressBlock(plain, compressed, nil)
	if err != nil {
		return nil, err
	}
	// lz4.CompressBlock reports written == 0 when the input is
	// incompressible; fall back to storing it uncompressed with a
	// zero-length header so decodeSamples can tell the two cases apart.
	if written == 0 {
		return append(encodeLZ4Header(0), plain...), nil
	}

	out := encodeLZ4Header(uint32(len(plain)))
	return append(out, compressed[:written]...), nil
}

func decodeSamples(raw []byte, policy types.CompressionPolicy) ([]float32, error) {
	if raw == nil {
		return nil, nil
	}

	plain := raw
	if policy.Codec == types.CompressionLZ4 {
		plainLen, body, err := decodeLZ4Header(raw)
		if err != nil {
			return nil, err
		}
		if plainLen == 0 {
			plain = body
		} else {
			decompressed := make([]byte, plainLen)
			if _, err := lz4.UncompressBlock(body, decompressed); err != nil {
				return nil, err
			}
			plain = decompressed
		}
	}

	n := len(plain) / 4
	samples := make([]float32, n)
	if err := binary.Read(bytes.NewReader(plain), binary.LittleEndian, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func encodeLZ4Header(plainLen uint32) []byte {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, plainLen)
	return header
}

func decodeLZ4Header(raw []byte) (uint32, []byte, error) {
	if len(raw) < 4 {
		return 0, nil, fmt.Errorf("store: truncated lz4 frame")
	}
	return binary.LittleEndian.Uint32(raw[:4]), raw[4:], nil
}
