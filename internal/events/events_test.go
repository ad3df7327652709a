package events

import (
	"context"
	"testing"
	"time"

	"family-shield/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestStreamPublisher_Publish(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	p := NewStreamPublisher(client, "family-shield:activations", 0, zap.NewNop())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := p.Publish(ctx, Event{
		Type:         ActivationConfirmed,
		ActivationID: "a1",
		UserID:       "u1",
		GuardianID:   "g1",
		Status:       models.ActivationConfirmed,
		OccurredAt:   at,
	})
	require.NoError(t, err)

	msgs, err := client.XRange(ctx, "family-shield:activations", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "activation_confirmed", msgs[0].Values["type"])
	assert.Equal(t, "1767323045", msgs[0].Values["timestamp"])

	e, err := Decode(msgs[0].Values)
	require.NoError(t, err)
	assert.Equal(t, "a1", e.ActivationID)
	assert.Equal(t, models.ActivationConfirmed, e.Status)
	assert.True(t, at.Equal(e.OccurredAt))
}

func TestStreamPublisher_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()
	p := NewStreamPublisher(client, "s", 0, zap.NewNop())
	err := p.Publish(context.Background(), Event{Type: ActivationCreated, OccurredAt: time.Now()})
	assert.Error(t, err)
}

func TestDecode_MissingData(t *testing.T) {
	_, err := Decode(map[string]interface{}{"type": "x"})
	assert.Error(t, err)
}

func TestForStatus(t *testing.T) {
	typ, ok := ForStatus(models.ActivationRejected)
	assert.True(t, ok)
	assert.Equal(t, ActivationRejected, typ)

	_, ok = ForStatus(models.ActivationPending)
	assert.False(t, ok)
}
