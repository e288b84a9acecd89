package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGenerationBumps(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	assert.Equal(t, uint64(0), m.Generation("calendar"))
	require.NoError(t, m.Invalidate(ctx, "calendar"))
	require.NoError(t, m.Invalidate(ctx, "calendar"))
	require.NoError(t, m.Invalidate(ctx, "tasks"))

	assert.Equal(t, uint64(2), m.Generation("calendar"))
	assert.Equal(t, uint64(1), m.Generation("tasks"))
	assert.Equal(t, uint64(0), m.Generation("timeblocks"))
}

func TestRedisNilClientIsNoop(t *testing.T) {
	r := NewRedis(nil, "")
	assert.NoError(t, r.Invalidate(context.Background(), "gate:gt_1"))
}
