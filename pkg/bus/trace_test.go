package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingBus_PassesMessagesThrough(t *testing.T) {
	ranks := NewLoopbackGroup(2)
	ctx := testCtx(t)

	traced0 := NewTracingBus(ranks[0])
	traced1 := NewTracingBus(ranks[1])

	require.NoError(t, traced0.Send(ctx, 1, WorkerRequestsItem, []byte("hello")))

	e, err := traced1.Recv(ctx, 0, WorkerRequestsItem)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), e.Payload)
	assert.Equal(t, 0, e.Source)

	assert.Equal(t, 0, traced0.Rank())
	assert.Equal(t, 2, traced1.Size())
}

func TestTracingBus_WaitAllPassesThrough(t *testing.T) {
	ranks := NewLoopbackGroup(3)
	ctx := testCtx(t)

	traced0 := NewTracingBus(ranks[0])
	require.NoError(t, traced0.WaitAll(ctx, []int{1, 2}, AllDone, nil))

	e1, err := ranks[1].Recv(ctx, 0, AllDone)
	require.NoError(t, err)
	assert.Equal(t, AllDone, e1.Tag)

	e2, err := ranks[2].Recv(ctx, 0, AllDone)
	require.NoError(t, err)
	assert.Equal(t, AllDone, e2.Tag)
}
