// Package redis caches pull-session cursors and entity status snapshots.
//
// Graceful fallback: if Redis is unavailable, operations silently return
// zero values instead of blocking the ingestion path.
package redis

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telegate/telegate/internal/telegram"
)

// Key prefixes.
const (
	keyCursor = "cursor:" // last acknowledged stream sequence per entity
	keyStatus = "status:" // entity status snapshot for fast reads
)

const statusTTL = 24 * time.Hour

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

// Cache is an injected handle; a nil client means every operation is a
// silent no-op.
type Cache struct {
	client *redis.Client
}

// New connects to Redis. An empty URL or a failed ping yields a disabled
// cache, never an error: the system runs without it.
func New(cfg Config) *Cache {
	if cfg.URL == "" {
		log.Println("[Redis] URL not configured, cache disabled")
		return &Cache{}
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("[Redis] invalid URL, cache disabled: %v", err)
		return &Cache{}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis] connection failed, cache disabled: %v", err)
		c.Close()
		return &Cache{}
	}

	log.Println("[Redis] connected")
	return &Cache{client: c}
}

// Available reports whether the cache is connected.
func (c *Cache) Available() bool {
	return c.client != nil
}

// Close closes the connection if one exists.
func (c *Cache) Close() {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

// Cursor returns the last stored stream sequence for an entity, or 0.
func (c *Cache) Cursor(ctx context.Context, entity telegram.EntityRef) int64 {
	if c.client == nil {
		return 0
	}
	val, err := c.client.Get(ctx, keyCursor+entity.String()).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Redis] cursor read failed (%s): %v", entity, err)
		}
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SetCursor stores the last acknowledged stream sequence.
func (c *Cache) SetCursor(ctx context.Context, entity telegram.EntityRef, seq int64) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, keyCursor+entity.String(), strconv.FormatInt(seq, 10), 0).Err(); err != nil {
		log.Printf("[Redis] cursor write failed (%s): %v", entity, err)
	}
}

// Status returns the cached status snapshot, or "" when absent.
func (c *Cache) Status(ctx context.Context, entity telegram.EntityRef) string {
	if c.client == nil {
		return ""
	}
	val, err := c.client.Get(ctx, keyStatus+entity.String()).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Redis] status read failed (%s): %v", entity, err)
		}
		return ""
	}
	return val
}

// SetStatus stores the status snapshot with a TTL.
func (c *Cache) SetStatus(ctx context.Context, entity telegram.EntityRef, status string) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, keyStatus+entity.String(), status, statusTTL).Err(); err != nil {
		log.Printf("[Redis] status write failed (%s): %v", entity, err)
	}
}
