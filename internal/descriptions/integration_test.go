//go:build integration

package descriptions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/testutils"
)

func TestIntegrationRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	rdb := testutils.StartRedis(t, ctx)

	s := NewRedisStore(rdb, 300*time.Millisecond)

	token, err := s.Put(ctx, "caption")
	require.NoError(t, err)

	text, err := s.Take(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "caption", text)

	_, err = s.Take(ctx, token)
	assert.ErrorIs(t, err, ErrExpired)

	stale, err := s.Put(ctx, "stale")
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)
	_, err = s.Take(ctx, stale)
	assert.ErrorIs(t, err, ErrExpired)
}
