// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"cmskit/internal/cms"
	"cmskit/internal/models"
	"cmskit/internal/render"
)

const (
	// payloadKeyPrefix is the Valkey key prefix for cached public payloads.
	payloadKeyPrefix = "cms:payload:"

	// DefaultPayloadTTL is how long a rendered payload stays cached.
	DefaultPayloadTTL = 5 * time.Minute
)

// PayloadCache stores rendered public payloads in Valkey, keyed by their
// public address. Cache errors are logged and treated as misses.
type PayloadCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPayloadCache creates a payload cache backed by the given Valkey client.
func NewPayloadCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *PayloadCache {
	if ttl <= 0 {
		ttl = DefaultPayloadTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PayloadCache{client: client, ttl: ttl, logger: logger}
}

// Key returns the cache key for a public address.
func Key(postType, locale, slug string) string {
	return fmt.Sprintf("%s%s:%s:%s", payloadKeyPrefix, postType, locale, slug)
}

// Get returns the cached payload for key.
func (pc *PayloadCache) Get(ctx context.Context, key string) (*render.Payload, bool) {
	val, err := pc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		pc.logger.Warn("payload cache get error", "key", key, "error", err)
		return nil, false
	}

	var p render.Payload
	if err := json.Unmarshal(val, &p); err != nil {
		pc.logger.Warn("payload cache decode error", "key", key, "error", err)
		return nil, false
	}
	return &p, true
}

// Set stores p under key. Protected payloads are never cached since their
// visibility depends on the caller's unlock token.
func (pc *PayloadCache) Set(ctx context.Context, key string, p *render.Payload) {
	if p == nil || p.Protected {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		pc.logger.Warn("payload cache encode error", "key", key, "error", err)
		return
	}
	if err := pc.client.Set(ctx, key, data, pc.ttl).Err(); err != nil {
		pc.logger.Warn("payload cache set error", "key", key, "error", err)
	}
}

// Invalidate removes the cached payload of each head's public address.
func (pc *PayloadCache) Invalidate(ctx context.Context, heads ...*models.Head) error {
	var keys []string
	for _, h := range heads {
		if h == nil || h.Slug == "" {
			continue
		}
		keys = append(keys, Key(h.PostType, h.Locale, h.Slug))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := pc.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("payload cache invalidate: %w", err)
	}
	pc.logger.Debug("payload cache invalidated", "keys", keys)
	return nil
}

// InvalidateAll removes every cached payload by scanning for the prefix.
func (pc *PayloadCache) InvalidateAll(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := pc.client.Scan(ctx, cursor, payloadKeyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("payload cache scan: %w", err)
		}
		if len(keys) > 0 {
			if err := pc.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("payload cache bulk delete: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		pc.logger.Info("payload cache fully cleared", "deleted", deleted)
	}
	return deleted, nil
}

// InvalidationHook evicts the old and new public address of every written
// item. Lock changes do not affect the public payload and are skipped.
func (pc *PayloadCache) InvalidationHook() cms.Hook {
	return func(ctx context.Context, ev cms.Event) error {
		switch ev.Type {
		case cms.EventLock, cms.EventUnlock:
			return nil
		}
		return pc.Invalidate(ctx, ev.Row, ev.Previous)
	}
}
