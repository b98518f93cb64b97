package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Input    string  `json:"input"`
	Selected []int64 `json:"selected"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewClient(addr, "", 0)
	assert.Error(t, err)
}

func TestSnapshotRoundTripAndTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	in := snapshot{Input: "draft", Selected: []int64{3, 1}}
	require.NoError(t, c.SaveSnapshot(ctx, "abc", in, time.Hour))

	var out snapshot
	found, err := c.GetSnapshot(ctx, "abc", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)

	mr.FastForward(2 * time.Hour)

	found, err = c.GetSnapshot(ctx, "abc", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteSnapshot(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SaveSnapshot(ctx, "one", snapshot{}, time.Hour))
	require.NoError(t, c.SaveSnapshot(ctx, "two", snapshot{}, time.Hour))

	require.NoError(t, c.DeleteSnapshot(ctx, "one"))

	var out snapshot
	found, err := c.GetSnapshot(ctx, "one", &out)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = c.GetSnapshot(ctx, "two", &out)
	require.NoError(t, err)
	assert.True(t, found)
}
