package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tullo/guardian/internal/models"
)

const (
	resultKeyPrefix = "moderation:result:"
	reviewChannel   = "moderation:reviews"
)

type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Verdicts

// GetResult loads a cached verdict. A miss returns (nil, nil).
func (r *RedisClient) GetResult(ctx context.Context, key string) (*models.ModerationResult, error) {
	data, err := r.client.Get(ctx, resultKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result models.ModerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetResultTTL loads a cached verdict together with its remaining lifetime.
// A miss returns (nil, 0, nil).
func (r *RedisClient) GetResultTTL(ctx context.Context, key string) (*models.ModerationResult, time.Duration, error) {
	var get *redis.StringCmd
	var pttl *redis.DurationCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, resultKeyPrefix+key)
		pttl = pipe.PTTL(ctx, resultKeyPrefix+key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var result models.ModerationResult
	if err := json.Unmarshal([]byte(get.Val()), &result); err != nil {
		return nil, 0, err
	}
	return &result, pttl.Val(), nil
}

// SetResult stores a verdict with a TTL
func (r *RedisClient) SetResult(ctx context.Context, key string, result *models.ModerationResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, resultKeyPrefix+key, data, ttl).Err()
}

// Pub/Sub

// NotifyReviewQueued publishes a new review queue entry to every instance
func (r *RedisClient) NotifyReviewQueued(ctx context.Context, entry *models.ReviewQueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, reviewChannel, data).Err()
}

// SubscribeToReviews subscribes to the review queue channel
func (r *RedisClient) SubscribeToReviews(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, reviewChannel)
}

// AllowAction implements a Redis-backed token-bucket limiter per key (user+action).
// Returns true if the action is allowed, false if rate-limited.
func (r *RedisClient) AllowAction(ctx context.Context, userID string, action string, rate int, burst int) (bool, error) {
	key := fmt.Sprintf("rl:%s:%s", action, userID)
	// Lua script: manage tokens and last timestamp
	script := `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local vals = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(vals[1])
local last = tonumber(vals[2])
if tokens == nil then tokens = burst end
if last == nil then last = now end
local delta = math.max(0, now - last)
local new_tokens = math.min(burst, tokens + (delta * rate / 1000))
if new_tokens >= 1 then
	new_tokens = new_tokens - 1
	redis.call('HMSET', key, 'tokens', new_tokens, 'last', now)
	redis.call('PEXPIRE', key, 60000)
	return 1
else
	redis.call('HMSET', key, 'tokens', new_tokens, 'last', now)
	redis.call('PEXPIRE', key, 60000)
	return 0
end
`

	now := time.Now().UnixNano() / int64(time.Millisecond)
	res, err := r.client.Eval(ctx, script, []string{key}, rate, burst, now).Result()
	if err != nil {
		return false, err
	}
	// Eval returns int64 (1 or 0)
	switch v := res.(type) {
	case int64:
		return v == 1, nil
	case int:
		return v == 1, nil
	default:
		return false, fmt.Errorf("unexpected result from rate limiter: %T %v", res, res)
	}
}

// RedisResultCache shares verdicts between instances. Redis errors degrade
// to cache misses.
type RedisResultCache struct {
	redis *RedisClient
	ttl   time.Duration
	log   *zap.Logger
}

func NewRedisResultCache(redis *RedisClient, ttl time.Duration, log *zap.Logger) *RedisResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisResultCache{redis: redis, ttl: ttl, log: log.With(zap.String("module", "cache"))}
}

func (c *RedisResultCache) Get(ctx context.Context, key string) (*models.ModerationResult, bool) {
	result, err := c.redis.GetResult(ctx, key)
	if err != nil {
		c.log.Warn("failed to read cached verdict", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return result, result != nil
}

// getWithTTL is Get plus the remaining lifetime of the shared entry.
func (c *RedisResultCache) getWithTTL(ctx context.Context, key string) (*models.ModerationResult, time.Duration, bool) {
	result, ttl, err := c.redis.GetResultTTL(ctx, key)
	if err != nil {
		c.log.Warn("failed to read cached verdict", zap.String("key", key), zap.Error(err))
		return nil, 0, false
	}
	return result, ttl, result != nil
}

func (c *RedisResultCache) Put(ctx context.Context, key string, result *models.ModerationResult) {
	if result == nil {
		return
	}
	if err := c.redis.SetResult(ctx, key, result, c.ttl); err != nil {
		c.log.Warn("failed to cache verdict", zap.String("key", key), zap.Error(err))
	}
}

// Tiered checks the local cache first and the shared cache second. A shared
// hit fills the local tier for the remaining shared lifetime only.
type Tiered struct {
	Local  *ResultCache
	Shared *RedisResultCache
}

func (t *Tiered) Get(ctx context.Context, key string) (*models.ModerationResult, bool) {
	if res, ok := t.Local.Get(ctx, key); ok {
		return res, true
	}
	if t.Shared == nil {
		return nil, false
	}
	res, ttl, ok := t.Shared.getWithTTL(ctx, key)
	if ok && ttl > 0 {
		t.Local.PutWithTTL(ctx, key, res, ttl)
	}
	return res, ok
}

func (t *Tiered) Put(ctx context.Context, key string, result *models.ModerationResult) {
	t.Local.Put(ctx, key, result)
	if t.Shared != nil {
		t.Shared.Put(ctx, key, result)
	}
}
