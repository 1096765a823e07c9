package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the lock past the wait budget.
var ErrHeld = errors.New("lock held by another holder")

// Locker serialises lifecycle steps across edge replicas.
type Locker interface {
	Acquire(ctx context.Context, key string) (Releaser, error)
}

type Releaser interface {
	Unlock(ctx context.Context) error
}

type RedisLock struct {
	client *redis.Client
	key    string
	token  string
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func TryLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*RedisLock, bool, error) {
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &RedisLock{client: client, key: key, token: token}, true, nil
}

func (l *RedisLock) Unlock(ctx context.Context) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	return err
}

// RedisLocker polls TryLock until the lock is free or MaxWait elapses.
type RedisLocker struct {
	Client  *redis.Client
	TTL     time.Duration
	MaxWait time.Duration
	Poll    time.Duration
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Releaser, error) {
	poll := l.Poll
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.Now().Add(l.MaxWait)
	for {
		rl, ok, err := TryLock(ctx, l.Client, "lock:"+key, l.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return rl, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Local is a Locker for a single node; the process is the only writer.
type Local struct{}

func (Local) Acquire(ctx context.Context, key string) (Releaser, error) {
	return noopRelease{}, nil
}

type noopRelease struct{}

func (noopRelease) Unlock(ctx context.Context) error { return nil }
