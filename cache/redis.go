package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/skimmer/models"
)

// redisEntry is the stored JSON envelope. The creation timestamp travels with
// the document so per-request max-age checks work independently of the TTL.
type redisEntry struct {
	Doc       *models.Document `json:"doc"`
	CreatedAt time.Time        `json:"created_at"`
}

// Redis is a Store backed by a Redis server. Backend errors degrade to cache
// misses; the pipeline must keep working when Redis is down.
type Redis struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

// NewRedis creates a Redis store talking to addr (host:port).
func NewRedis(addr, password string, db int, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "skimmer:doc:",
		log:    log,
	}
}

// Ping verifies connectivity, for startup checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string, maxAge time.Duration) (*models.Document, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.Warn("cache: redis get failed", "error", err)
		}
		return nil, false
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.log.Warn("cache: corrupt redis entry dropped", "key", key, "error", err)
		r.client.Del(ctx, r.prefix+key)
		return nil, false
	}
	if time.Since(e.CreatedAt) > maxAge {
		return nil, false
	}
	return e.Doc, true
}

func (r *Redis) Set(ctx context.Context, key string, doc *models.Document, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	raw, err := json.Marshal(redisEntry{Doc: doc, CreatedAt: time.Now()})
	if err != nil {
		r.log.Warn("cache: marshal document failed", "error", err)
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		r.log.Warn("cache: redis set failed", "error", err)
	}
}

// Len is unknown for Redis without scanning the keyspace; returns -1.
func (r *Redis) Len() int { return -1 }

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
