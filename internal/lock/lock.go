package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotHeld the lease expired or belongs to someone else
var ErrNotHeld = errors.New("lock not held")

// compare-and-delete so a holder never releases a lease it lost
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker grants short leases to one scheduler instance at a time
type Locker interface {
	TryAcquire(ctx context.Context, name string) (*Lease, error)
}

// Lease a held lock; Release it when the guarded work is done
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *Lease) Key() string { return l.key }

// Release drops the lease if it is still ours
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// RedisLocker SET NX PX leases under a key prefix
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// TryAcquire returns (nil, nil) when another holder owns the lease
func (r *RedisLocker) TryAcquire(ctx context.Context, name string) (*Lease, error) {
	key := r.prefix + name
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{client: r.client, key: key, token: token}, nil
}
