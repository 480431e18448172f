package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/quiverio/quiver/pkg/store"
	"github.com/quiverio/quiver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ProcessesAllJobsWithIdentityTransform(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "in.quiver")
	outputPath := filepath.Join(t.TempDir(), "out.quiver")

	input, err := store.Open(inputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer input.Close()
	output, err := store.Open(outputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer output.Close()

	seedStation(t, input, "IU.ANMO", "raw", []float32{1, 2, 3})
	seedStation(t, input, "IU.COLA", "raw", []float32{4, 5, 6})
	seedStation(t, input, "IU.KIEV", "raw", []float32{7, 8, 9})

	jobs := []types.Job{
		{Station: "IU.ANMO", InputTag: "raw"},
		{Station: "IU.COLA", InputTag: "raw"},
		{Station: "IU.KIEV", InputTag: "raw"},
	}

	l := &Local{
		Input:     input,
		Output:    output,
		Jobs:      jobs,
		TagMap:    types.TagMap{"raw": "processed"},
		Transform: identityTransform,
		Workers:   2,
	}

	require.NoError(t, l.Run(context.Background()))

	stations, err := output.Stations()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"IU.ANMO", "IU.COLA", "IU.KIEV"}, stations)

	stream, _, err := output.ReadWaveformAndStation("IU.KIEV", "processed")
	require.NoError(t, err)
	require.Len(t, stream.Traces, 1)
	assert.Equal(t, []float32{7, 8, 9}, stream.Traces[0].Samples)
}

func TestLocal_TransformError_SkipsJobWithoutCrashing(t *testing.T) {
	inputPath := filepath.Join(t.TempDir(), "in.quiver")
	outputPath := filepath.Join(t.TempDir(), "out.quiver")

	input, err := store.Open(inputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer input.Close()
	output, err := store.Open(outputPath, store.CompressionConfig{Codec: types.CompressionNone})
	require.NoError(t, err)
	defer output.Close()

	seedStation(t, input, "IU.ANMO", "raw", []float32{1, 2, 3})
	seedStation(t, input, "IU.COLA", "raw", []float32{4, 5, 6})

	failOnCola := func(s *types.Stream, _ *types.StationXML) (*types.Stream, error) {
		if s.Station == "IU.COLA" {
			panic("boom")
		}
		return s, nil
	}

	jobs := []types.Job{
		{Station: "IU.ANMO", InputTag: "raw"},
		{Station: "IU.COLA", InputTag: "raw"},
	}

	l := &Local{
		Input:     input,
		Output:    output,
		Jobs:      jobs,
		TagMap:    types.TagMap{"raw": "processed"},
		Transform: failOnCola,
		Workers:   1,
	}

	require.NoError(t, l.Run(context.Background()))

	stations, err := output.Stations()
	require.NoError(t, err)
	assert.Equal(t, []string{"IU.ANMO"}, stations)
}

func TestDetectForkSafety_AlwaysSafeInPureGo(t *testing.T) {
	assert.Equal(t, ForkSafe, DetectForkSafety())
}

func TestLocal_WorkerCount_CapsAtJobCount(t *testing.T) {
	l := &Local{Jobs: []types.Job{{Station: "A", InputTag: "raw"}}}
	assert.Equal(t, 1, l.workerCount())
}
