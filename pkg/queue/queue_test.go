package queue

import (
	"testing"

	"github.com/quiverio/quiver/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobs(pairs ...[2]string) []types.Job {
	out := make([]types.Job, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, types.Job{Station: p[0], InputTag: p[1]})
	}
	return out
}

func TestGetJobForWorker_FIFOAndEmpty(t *testing.T) {
	q := New(jobs([2]string{"A", "raw"}, [2]string{"B", "raw"}), []string{"1", "2"})

	j1, err := q.GetJobForWorker("1")
	require.NoError(t, err)
	assert.Equal(t, "A", j1.Station)

	j2, err := q.GetJobForWorker("2")
	require.NoError(t, err)
	assert.Equal(t, "B", j2.Station)

	assert.True(t, q.Empty())
	_, err = q.GetJobForWorker("1")
	assert.Error(t, err)
}

func TestComplete_UniqueMatchRequired(t *testing.T) {
	q := New(jobs([2]string{"A", "raw"}), []string{"1"})

	job, err := q.GetJobForWorker("1")
	require.NoError(t, err)

	// Wrong worker.
	err = q.Complete(job.Args(), &types.JobResult{}, "2")
	assert.Error(t, err)

	// Right worker.
	err = q.Complete(job.Args(), &types.JobResult{TraceCount: 1}, "1")
	require.NoError(t, err)
	assert.True(t, q.AllDone())

	// Duplicate completion.
	err = q.Complete(job.Args(), &types.JobResult{}, "1")
	assert.Error(t, err)
}

func TestPoisonPill_DoubleAckIsError(t *testing.T) {
	q := New(jobs([2]string{"A", "raw"}), []string{"1", "2"})

	require.NoError(t, q.PoisonPillReceived("1"))
	assert.False(t, q.AllPoisonPillsReceived())

	require.NoError(t, q.PoisonPillReceived("2"))
	assert.True(t, q.AllPoisonPillsReceived())

	err := q.PoisonPillReceived("1")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestSnapshot_TracksActiveAndFinished(t *testing.T) {
	q := New(jobs([2]string{"A", "raw"}, [2]string{"B", "raw"}), []string{"1"})

	j, err := q.GetJobForWorker("1")
	require.NoError(t, err)

	stats := q.Snapshot()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 0, stats.Finished)

	require.NoError(t, q.Complete(j.Args(), &types.JobResult{}, "1"))
	stats = q.Snapshot()
	assert.Equal(t, 1, stats.Finished)
	assert.Equal(t, 1, stats.PerWorker["1"].Completed)
}
