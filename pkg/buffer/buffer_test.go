package buffer

import (
	"testing"

	"github.com/quiverio/quiver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPut_RejectsNil(t *testing.T) {
	b := New()
	err := b.Put(types.JobArgs{Station: "A", InputTag: "raw"}, nil)
	assert.Error(t, err)
}

func TestSize_IncludesSafetyMargin(t *testing.T) {
	b := New()
	stream := &types.Stream{Traces: []types.Trace{{Samples: make([]float32, 1000)}}}
	require.NoError(t, b.Put(types.JobArgs{Station: "A", InputTag: "raw"}, stream))

	raw := stream.ByteSize()
	got := b.Size()
	assert.Greater(t, got, raw)
	assert.Less(t, got, raw+raw/10) // margin is small, not 10%
}

func TestClear_RemovesAllEntries(t *testing.T) {
	b := New()
	require.NoError(t, b.Put(types.JobArgs{Station: "A", InputTag: "raw"}, &types.Stream{}))
	require.NoError(t, b.Put(types.JobArgs{Station: "B", InputTag: "raw"}, &types.Stream{}))
	assert.Equal(t, 2, b.Len())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, int64(0), b.Size())
}

func TestEntries_SnapshotsCurrentState(t *testing.T) {
	b := New()
	key := types.JobArgs{Station: "A", InputTag: "raw"}
	require.NoError(t, b.Put(key, &types.Stream{Station: "A"}))

	entries := b.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, key, entries[0].Key)
}
