package app

import (
	"context"
	"testing"

	"family-shield/internal/config"
	"family-shield/internal/detection"
	"family-shield/internal/events"
	"family-shield/internal/models"
	"family-shield/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_MemoryStoreWithRedisStream(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("REDIS_ADDR", mr.Addr())
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	a := New(ctx, cfg, zap.NewNop())
	t.Cleanup(a.Close)

	require.NotNil(t, a.Redis)
	_, isMemory := a.Store.(*repository.MemoryStore)
	assert.True(t, isMemory)

	_, err = a.Service.InitializeForUser(ctx, "u1")
	require.NoError(t, err)
	res, err := a.Service.ManualTrigger(ctx, detection.TriggerRequest{UserID: "u1", TriggerType: models.TriggerAdminOverride})
	require.NoError(t, err)

	msgs, err := a.Redis.XRange(ctx, cfg.Shield.EventStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	e, err := events.Decode(msgs[0].Values)
	require.NoError(t, err)
	assert.Equal(t, events.ActivationCreated, e.Type)
	assert.Equal(t, res.Activation.ID, e.ActivationID)
}

func TestNew_RedisUnavailable(t *testing.T) {
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	cfg, err := config.Load()
	require.NoError(t, err)

	a := New(context.Background(), cfg, zap.NewNop())
	t.Cleanup(a.Close)

	assert.Nil(t, a.Redis)
	assert.NotNil(t, a.Service)
}
