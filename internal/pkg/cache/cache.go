// Package cache connects to the Redis compatible cache server (Dragonfly in
// the compose setup) shared by locks, webhook deduplication and rate limiting.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/jaat-ai/ledger/internal/pkg/env"
)

// NewClient builds a client for the configured cache server and checks the connection.
func NewClient(ctx context.Context, cfg *env.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     Addr(cfg),
		Password: cfg.CachePassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pong, err := client.Ping(pingCtx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to cache %s: %w", Addr(cfg), err)
	}
	log.Infof("[Cache] connected to %s: %s", Addr(cfg), pong)
	return client, nil
}

// Addr returns host:port of the cache server.
func Addr(cfg *env.Config) string {
	return fmt.Sprintf("%s:%d", cfg.CacheHost, cfg.CachePort)
}

// NewLimiterStorage returns Fiber storage for the rate limiter. It uses a
// separate database so limiter keys never mix with locks or webhook claims.
func NewLimiterStorage(cfg *env.Config) *redisstorage.Storage {
	return redisstorage.New(redisstorage.Config{
		Host:     cfg.CacheHost,
		Port:     cfg.CachePort,
		Password: cfg.CachePassword,
		Database: 1,
		Reset:    false,
	})
}
