package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quiverio/quiver/pkg/bus"
	"github.com/quiverio/quiver/pkg/queue"
	"github.com/quiverio/quiver/pkg/store"
	"github.com/quiverio/quiver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityTransform(s *types.Stream, _ *types.StationXML) (*types.Stream, error) {
	return s, nil
}

func seedStation(t *testing.T, s *store.BoltStore, station, inputTag string, samples []float32) {
	t.Helper()
	parts := splitStation(station)
	trace := &types.Trace{
		Network:      parts[0],
		Station:      parts[1],
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
}

func splitStation(station string) [2]string {
	for i, c := range station {
		if c == '.' {
			return [2]string{station[:i], station[i+1:]}
		}
	}
	return [2]string{"XX", station}
}

func TestDistributed_TwoWorkerFleet_ProcessesAllJobs(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "in.quiver")
	outputPath := filepath.Join(t.TempDir(), "out.quiver")

	input, err := store.Open(inputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer input.Close()

	output, err := store.Open(outputPath, store.CompressionConfig{BusMode: true})
	require.NoError(t, err)
	defer output.Close()

	seedStation(t, input, "IU.ANMO", "raw", []float32{1, 2, 3, 4})
	seedStation(t, input, "IU.COLA", "raw", []float32{5, 6, 7, 8})

	jobs := []types.Job{
		{Station: "IU.ANMO", InputTag: "raw"},
		{Station: "IU.COLA", InputTag: "raw"},
	}
	tagMap := types.TagMap{"raw": "processed"}

	ranks := bus.NewLoopbackGroup(3)
	q := queue.New(jobs, []string{workerName(1), workerName(2)})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for r := 0; r < 3; r++ {
		d := &Distributed{
			Bus:       ranks[r],
			Input:     input,
			Output:    output,
			TagMap:    tagMap,
			Transform: identityTransform,
		}
		if r == 0 {
			d.Queue = q
		}
		wg.Add(1)
		go func(r int, d *Distributed) {
			defer wg.Done()
			errs[r] = d.Run(ctx)
		}(r, d)
	}
	wg.Wait()

	for r, err := range errs {
		assert.NoError(t, err, "rank %d", r)
	}

	snap := q.Snapshot()
	assert.Equal(t, 2, snap.Finished)

	tags, err := output.TagsFor("IU.ANMO")
	require.NoError(t, err)
	assert.Contains(t, tags, "processed")

	stream, _, err := output.ReadWaveformAndStation("IU.ANMO", "processed")
	require.NoError(t, err)
	require.Len(t, stream.Traces, 1)
	assert.Equal(t, []float32{1, 2, 3, 4}, stream.Traces[0].Samples)

	stream2, _, err := output.ReadWaveformAndStation("IU.COLA", "processed")
	require.NoError(t, err)
	require.Len(t, stream2.Traces, 1)
	assert.Equal(t, []float32{5, 6, 7, 8}, stream2.Traces[0].Samples)
}

func TestDistributed_TransformError_DropsJobWithoutCrashing(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "in.quiver")
	outputPath := filepath.Join(t.TempDir(), "out.quiver")

	input, err := store.Open(inputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer input.Close()
	output, err := store.Open(outputPath, store.CompressionConfig{BusMode: true})
	require.NoError(t, err)
	defer output.Close()

	seedStation(t, input, "IU.ANMO", "raw", []float32{1, 2, 3})
	seedStation(t, input, "IU.COLA", "raw", []float32{4, 5, 6})

	jobs := []types.Job{
		{Station: "IU.ANMO", InputTag: "raw"},
		{Station: "IU.COLA", InputTag: "raw"},
	}
	tagMap := types.TagMap{"raw": "processed"}

	failOnCola := func(s *types.Stream, _ *types.StationXML) (*types.Stream, error) {
		if s.Station == "IU.COLA" {
			panic("boom")
		}
		return s, nil
	}

	ranks := bus.NewLoopbackGroup(2)
	q := queue.New(jobs, []string{workerName(1)})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for r := 0; r < 2; r++ {
		d := &Distributed{
			Bus:       ranks[r],
			Input:     input,
			Output:    output,
			TagMap:    tagMap,
			Transform: failOnCola,
		}
		if r == 0 {
			d.Queue = q
		}
		wg.Add(1)
		go func(r int, d *Distributed) {
			defer wg.Done()
			errs[r] = d.Run(ctx)
		}(r, d)
	}
	wg.Wait()

	for r, err := range errs {
		assert.NoError(t, err, "rank %d", r)
	}

	stations, err := output.Stations()
	require.NoError(t, err)
	assert.Equal(t, []string{"IU.ANMO"}, stations)
}
