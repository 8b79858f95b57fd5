package lib

import (
	"context"
	"errors"
	"log"
	"raffles/src/config"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// GetRedisClient returns the client for REDIS_URL, or nil when Redis is not configured.
func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisURL := config.Get().RedisURL
	if redisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

var ErrLockHeld = errors.New("lock held by another instance")

// RedisLocker is a gocron distributed locker so a job runs on one replica per tick.
type RedisLocker struct {
	client   redis.Cmdable
	prefix   string
	ttl      time.Duration
	newToken func() string
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   client,
		prefix:   "raffles:lock:",
		ttl:      ttl,
		newToken: uuid.NewString,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLock{client: l.client, key: l.prefix + key, token: token}, nil
}

type redisLock struct {
	client redis.Cmdable
	key    string
	token  string
}

// Unlock releases the lock only while it still holds the token written by Lock.
func (l *redisLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Err()
}
