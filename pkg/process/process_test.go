package process

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quiverio/quiver/pkg/bus"
	"github.com/quiverio/quiver/pkg/store"
	"github.com/quiverio/quiver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityTransform(s *types.Stream, _ *types.StationXML) (*types.Stream, error) {
	return s, nil
}

// xmlStub is a throwaway store.Store whose only role is to hand a fixed
// StationXML document to CopyStationXML; every other Store method is
// unreachable in these tests.
type xmlStub struct {
	store.Store
	xml []byte
}

func (x xmlStub) StationXMLBytes(string) ([]byte, error) { return x.xml, nil }

func seedInput(t *testing.T, path, station, network, inputTag string, samples []float32) {
	t.Helper()
	s, err := store.Open(path, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer s.Close()

	trace := &types.Trace{
		Network:      network,
		Station:      station,
		Location:     "00",
		Channel:      "BHZ",
		StartTime:    1_600_000_000_000_000_000,
		SamplingRate: 20.0,
		Samples:      samples,
	}
	intent, err := s.DescribeCollective(trace, inputTag)
	require.NoError(t, err)
	require.NoError(t, s.WriteCollective(intent))
	require.NoError(t, s.WriteIndependent(intent, samples))

	fullStation := network + "." + station
	require.NoError(t, s.CopyStationXML(xmlStub{xml: []byte("<FDSNStationXML/>")}, fullStation))
}

func TestRun_LocalBackend_PopulatesOutputStore(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "in.quiver")
	outputPath := filepath.Join(t.TempDir(), "out.quiver")

	seedInput(t, inputPath, "ANMO", "IU", "raw", []float32{1, 2, 3})
	seedInput(t, inputPath, "COLA", "IU", "raw", []float32{4, 5, 6})

	cfg := Config{
		InputPath:    inputPath,
		OutputPath:   outputPath,
		TagMap:       types.TagMap{"raw": "processed"},
		LocalWorkers: 2,
	}

	require.NoError(t, Run(context.Background(), cfg, identityTransform))

	out, err := store.Open(outputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer out.Close()

	stations, err := out.Stations()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"IU.ANMO", "IU.COLA"}, stations)

	stream, station, err := out.ReadWaveformAndStation("IU.ANMO", "processed")
	require.NoError(t, err)
	require.Len(t, stream.Traces, 1)
	assert.Equal(t, []float32{1, 2, 3}, stream.Traces[0].Samples)
	require.NotNil(t, station)
	assert.Equal(t, []byte("<FDSNStationXML/>"), station.Data)
}

func TestRun_LocalBackend_NoMatchingTagsIsError(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "in.quiver")
	outputPath := filepath.Join(t.TempDir(), "out.quiver")

	seedInput(t, inputPath, "ANMO", "IU", "raw", []float32{1, 2, 3})

	cfg := Config{
		InputPath:  inputPath,
		OutputPath: outputPath,
		TagMap:     types.TagMap{"something_else": "processed"},
	}

	err := Run(context.Background(), cfg, identityTransform)
	assert.Error(t, err)
}

func TestRun_DistributedBackend_ProcessesAcrossFleet(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "in.quiver")
	outputPath := filepath.Join(t.TempDir(), "out.quiver")

	seedInput(t, inputPath, "ANMO", "IU", "raw", []float32{1, 2, 3, 4})
	seedInput(t, inputPath, "COLA", "IU", "raw", []float32{5, 6, 7, 8})

	ranks := bus.NewLoopbackGroup(3)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for r := 0; r < 3; r++ {
		cfg := Config{
			InputPath:  inputPath,
			OutputPath: outputPath,
			TagMap:     types.TagMap{"raw": "processed"},
			Bus:        ranks[r],
		}
		wg.Add(1)
		go func(r int, cfg Config) {
			defer wg.Done()
			errs[r] = Run(ctx, cfg, identityTransform)
		}(r, cfg)
	}
	wg.Wait()

	for r, err := range errs {
		assert.NoError(t, err, "rank %d", r)
	}

	out, err := store.Open(outputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer out.Close()

	stations, err := out.Stations()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"IU.ANMO", "IU.COLA"}, stations)

	stream, _, err := out.ReadWaveformAndStation("IU.COLA", "processed")
	require.NoError(t, err)
	require.Len(t, stream.Traces, 1)
	assert.Equal(t, []float32{5, 6, 7, 8}, stream.Traces[0].Samples)
}

func TestRun_OutputPathAlreadyExistsIsError(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "in.quiver")
	outputPath := filepath.Join(t.TempDir(), "out.quiver")

	seedInput(t, inputPath, "ANMO", "IU", "raw", []float32{1, 2, 3})

	existing, err := store.Open(outputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	require.NoError(t, existing.Close())

	cfg := Config{
		InputPath:  inputPath,
		OutputPath: outputPath,
		TagMap:     types.TagMap{"raw": "processed"},
	}

	err = Run(context.Background(), cfg, identityTransform)
	assert.Error(t, err)
}
