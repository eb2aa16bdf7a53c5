// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache stores JSON encoded values in Redis. Expiry is left to Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fawa-io/receptacle/pkg/config"
	"github.com/fawa-io/receptacle/pkg/fwlog"
	"github.com/fawa-io/receptacle/pkg/metrics"
)

const adapterName = "redis"

// Cache is a thin adapter over a redis client.
type Cache struct {
	client redis.Cmdable
}

// New connects to the configured Redis and checks the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr(), err)
	}
	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

// Set stores value under key for ttl. A zero ttl keeps the key forever.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value for %s: %w", key, err)
	}
	err = c.client.Set(ctx, key, data, ttl).Err()
	metrics.ObserveOperation(adapterName, "set", err == nil)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	fwlog.Debugf("Cached %s for %s", key, ttl)
	return nil
}

// Update replaces the value of an existing key and keeps its remaining TTL.
// It reports false and writes nothing when the key is absent.
func (c *Cache) Update(ctx context.Context, key string, value any) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encoding cache value for %s: %w", key, err)
	}
	err = c.client.SetArgs(ctx, key, data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveOperation(adapterName, "update", true)
		fwlog.Debugf("Cache key %s absent, update skipped", key)
		return false, nil
	}
	metrics.ObserveOperation(adapterName, "update", err == nil)
	if err != nil {
		return false, fmt.Errorf("updating %s: %w", key, err)
	}
	return true, nil
}

// Fetch decodes the value of key into dest. It reports false when the key is
// absent or expired.
func (c *Cache) Fetch(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveOperation(adapterName, "fetch", true)
		return false, nil
	}
	metrics.ObserveOperation(adapterName, "fetch", err == nil)
	if err != nil {
		return false, fmt.Errorf("fetching %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decoding cache value for %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.client.Del(ctx, key).Err()
	metrics.ObserveOperation(adapterName, "delete", err == nil)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client when it owns one.
func (c *Cache) Close() error {
	if closer, ok := c.client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
