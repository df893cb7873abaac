//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bassosimone/svcbscan"
)

// Cache stores normalized records for the duration of a run, keyed by
// "fqdn:RTYPE". Invalidation is manual via Clear; entries without HTTPS
// records are cached too, so repeated names cost a single round trip.
type Cache interface {
	Get(key string) (svcbscan.Record, bool)
	Set(key string, rec svcbscan.Record)
	Clear()
	Close()
}

// CacheKey builds the cache key for a query.
func CacheKey(fullDomain, recordType string) string {
	return fullDomain + ":" + recordType
}

// NullCache is the no-op [Cache].
type NullCache struct{}

func (NullCache) Get(string) (svcbscan.Record, bool) { return svcbscan.Record{}, false }
func (NullCache) Set(string, svcbscan.Record)        {}
func (NullCache) Clear()                             {}
func (NullCache) Close()                             {}

// MemoryCache is an in-process [Cache] backed by ristretto.
type MemoryCache struct {
	inner *ristretto.Cache[string, svcbscan.Record]
}

// NewMemoryCache creates a [*MemoryCache] sized for a single scan run.
func NewMemoryCache() (*MemoryCache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config[string, svcbscan.Record]{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{inner: inner}, nil
}

func (c *MemoryCache) Get(key string) (svcbscan.Record, bool) {
	return c.inner.Get(key)
}

func (c *MemoryCache) Set(key string, rec svcbscan.Record) {
	c.inner.Set(key, rec, 1)
	// Make the write visible to the next lookup for the same name.
	c.inner.Wait()
}

func (c *MemoryCache) Clear() { c.inner.Clear() }
func (c *MemoryCache) Close() { c.inner.Close() }

// RedisOptions configures a [*RedisCache].
type RedisOptions struct {
	Address   string
	Password  string
	Database  int
	KeyPrefix string
	TTL       time.Duration
}

// RedisCache is a [Cache] shared across processes through Redis, useful
// when several scan runs should not re-query the same names.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	log       *logrus.Entry
}

// redisOpTimeout bounds each Redis command.
const redisOpTimeout = 3 * time.Second

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client:    client,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
		log:       logrus.WithField("component", "rediscache"),
	}, nil
}

func (c *RedisCache) Get(key string) (svcbscan.Record, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Debug("cache get failed")
		}
		return svcbscan.Record{}, false
	}
	var rec svcbscan.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.log.WithError(err).Warn("discarding undecodable cache entry")
		return svcbscan.Record{}, false
	}
	return rec, true
}

func (c *RedisCache) Set(key string, rec svcbscan.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		c.log.WithError(err).Warn("cache set failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Set(ctx, c.keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("cache set failed")
	}
}

// Clear removes every key under the configured prefix.
func (c *RedisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.WithError(err).Debug("cache delete failed")
		}
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).Debug("cache scan failed")
	}
}

func (c *RedisCache) Close() {
	if err := c.client.Close(); err != nil {
		c.log.WithError(err).Debug("close failed")
	}
}
