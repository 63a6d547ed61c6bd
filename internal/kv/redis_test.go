package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisBackendDocuments(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	b := NewRedisBackend(client, "test:")
	defer b.Close()

	ctx := context.Background()
	doc := b.Document("active_apps")

	_, err = doc.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	snap := NewSnapshot(doc, "active_apps", func() map[string]string { return map[string]string{} }, zap.NewNop())
	require.NoError(t, snap.Save(ctx, map[string]string{"u1": "step-2"}))

	assert.True(t, mr.Exists("test:active_apps"))
	assert.Equal(t, map[string]string{"u1": "step-2"}, snap.Load(ctx))
}

func TestRedisBackendUnavailableDegrades(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	b := NewRedisBackend(client, "")
	defer b.Close()
	mr.Close()

	snap := NewSnapshot(b.Document("completed_apps"), "completed_apps", func() []string { return []string{} }, zap.NewNop())
	assert.Empty(t, snap.Load(context.Background()))
	assert.Error(t, snap.Save(context.Background(), []string{"u1"}))
}
