package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"qistsync/internal/models"
	"qistsync/pkg/logger"
)

// Redis is the production freshness cache. Keys also carry a Redis TTL
// of 2x the logical TTL so abandoned entries do not accumulate.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis builds a Redis freshness cache from a redis:// URL.
func NewRedis(ctx context.Context, url string, poolSize int, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = poolSize
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Redis freshness cache initialized", "pool_size", poolSize, "ttl", ttl.String())
	return &Redis{client: client, ttl: ttl, now: time.Now}, nil
}

func (r *Redis) Get(ctx context.Context, userID string) ([]models.Installment, bool) {
	b, err := r.client.Get(ctx, userKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis cache get failed", "error", err)
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		logger.Debug(ctx, "Redis cache unmarshal failed", "error", err)
		return nil, false
	}
	if r.now().UnixMilli()-e.Timestamp >= r.ttl.Milliseconds() {
		return nil, false
	}
	return e.Data, true
}

func (r *Redis) Set(ctx context.Context, userID string, snapshot []models.Installment) {
	b, err := json.Marshal(entry{Data: snapshot, Timestamp: r.now().UnixMilli()})
	if err != nil {
		logger.Debug(ctx, "Marshal snapshot for cache failed", "error", err)
		return
	}
	if err := r.client.Set(ctx, userKey(userID), b, 2*r.ttl).Err(); err != nil {
		logger.Debug(ctx, "Redis cache set failed", "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, userID string) {
	if err := r.client.Del(ctx, userKey(userID)).Err(); err != nil {
		logger.Debug(ctx, "Redis cache invalidate failed", "error", err)
	}
}
