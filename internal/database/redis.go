package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClients keeps pub/sub on its own connection pool so long-lived
// subscriptions never starve queue and lock traffic.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Queue client
	queueClient := redis.NewClient(opt)
	if err := queueClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis (queue): %w", err)
	}

	// PubSub client (separate connection)
	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		queueClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Queue:  queueClient,
		PubSub: pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}

// releaseScript deletes a lock only while it still holds our token, so a
// holder whose TTL lapsed cannot free a lock someone else now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a held Redis mutex.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLock takes key with SETNX for ttl. ok is false when another holder
// has it.
func AcquireLock(ctx context.Context, client *redis.Client, key, token string, ttl time.Duration) (lock *Lock, ok bool, err error) {
	ok, err = client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{client: client, key: key, token: token}, true, nil
}

func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Locker hands out short-lived per-key Redis mutexes with random tokens.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire returns a release func when key was free. release never fails the
// caller; an expired lock is simply left alone.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	lock, ok, err := AcquireLock(ctx, l.client, key, uuid.NewString(), ttl)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() { lock.Release(context.Background()) }, true, nil
}
