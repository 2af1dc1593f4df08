package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"transitcat/internal/domain"
)

// RedisCache keeps bus statistics per catalogue version. Every entry lives
// under "transitcat:v:<fingerprint>:", so a whole version is purged with one
// pattern once a newer catalogue has been warmed.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisCache(addr, password string, db int, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: "transitcat:",
		logger: logger.With("component", "redis_cache"),
	}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedVersion returns the fingerprint of the last fully warmed catalogue,
// or "" when nothing has been warmed yet.
func (c *RedisCache) CachedVersion(ctx context.Context) (string, error) {
	version, err := c.client.Get(ctx, c.prefix+KeyVersion).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cached version: %w", err)
	}
	return version, nil
}

func (c *RedisCache) SetVersion(ctx context.Context, version string) error {
	if err := c.client.Set(ctx, c.prefix+KeyVersion, version, 0).Err(); err != nil {
		return fmt.Errorf("set cached version: %w", err)
	}
	return nil
}

// GetBusInfo looks up the statistics of bus computed for one catalogue version
func (c *RedisCache) GetBusInfo(ctx context.Context, version, bus string) (domain.BusInfo, bool, error) {
	start := time.Now()
	key := c.prefix + KeyBusInfo(version, bus)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("bus info miss", "bus", bus, "version", version)
		return domain.BusInfo{}, false, nil
	}
	if err != nil {
		c.logger.Error("bus info get failed", "bus", bus, "error", err)
		return domain.BusInfo{}, false, err
	}

	var info domain.BusInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.BusInfo{}, false, fmt.Errorf("decode bus info %q: %w", bus, err)
	}

	c.logger.Debug("bus info hit", "bus", bus, "version", version, "duration_ms", time.Since(start).Milliseconds())
	return info, true, nil
}

// SetBusInfo stores info under its bus name for one catalogue version
func (c *RedisCache) SetBusInfo(ctx context.Context, version string, info domain.BusInfo, ttl time.Duration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode bus info %q: %w", info.Name, err)
	}

	if err := c.client.Set(ctx, c.prefix+KeyBusInfo(version, info.Name), data, ttl).Err(); err != nil {
		c.logger.Error("bus info set failed", "bus", info.Name, "error", err)
		return err
	}
	return nil
}

// PurgeVersion removes every entry cached for one catalogue version
func (c *RedisCache) PurgeVersion(ctx context.Context, version string) (int, error) {
	deleted := 0
	iter := c.client.Scan(ctx, 0, c.prefix+KeyVersionPattern(version), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, iter.Err()
}
