// Package datastore is a thin Redis layer keyed by keyfactory keys.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/holmberd/go-protoconform/keyfactory"
)

const maxScanCount = 1000

var ErrKeyNotFound = errors.New("datastore: key not found")

// Client stores and retrieves raw values. It is safe for concurrent use.
type Client struct {
	rdb redis.UniversalClient
}

// NewClient creates a new instance of a Client.
func NewClient(rdb redis.UniversalClient) (*Client, error) {
	if rdb == nil {
		return nil, errors.New("datastore: redis client must not be nil")
	}
	return &Client{rdb: rdb}, nil
}

// Ping checks connectivity to the server.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("datastore: ping failed: %w", err)
	}
	return nil
}

// Put writes data under key, replacing any existing value.
// A zero expiration keeps the value until deleted.
func (c *Client) Put(ctx context.Context, key *keyfactory.Key, data []byte, expiration time.Duration) error {
	if key == nil {
		return nil
	}
	if err := c.rdb.Set(ctx, key.RedisKey(), data, expiration).Err(); err != nil {
		return fmt.Errorf("datastore: failed to write key %q: %w", key, err)
	}
	return nil
}

// PutMulti writes all pairs in one transaction.
func (c *Client) PutMulti(ctx context.Context, keys []*keyfactory.Key, data [][]byte, expiration time.Duration) error {
	if len(keys) != len(data) {
		return errors.New("datastore: key and data slices have different length")
	}
	if len(keys) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			pipe.Set(ctx, key.RedisKey(), data[i], expiration)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("datastore: failed to write %d keys: %w", len(keys), err)
	}
	return nil
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (c *Client) Get(ctx context.Context, key *keyfactory.Key) ([]byte, error) {
	if key == nil {
		return nil, ErrKeyNotFound
	}
	data, err := c.rdb.Get(ctx, key.RedisKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("datastore: %w", err)
	}
	return data, nil
}

// GetMulti returns the values stored under keys in key order.
// Missing keys are omitted from the result.
func (c *Client) GetMulti(ctx context.Context, keys []*keyfactory.Key) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rsKeys := make([]string, len(keys))
	for i, key := range keys {
		rsKeys[i] = key.RedisKey()
	}
	results, err := c.rdb.MGet(ctx, rsKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("datastore: failed to retrieve keys: %w", err)
	}
	values := make([][]byte, 0, len(results))
	for _, res := range results {
		switch v := res.(type) {
		case nil:
			continue
		case string:
			values = append(values, []byte(v))
		default:
			return nil, fmt.Errorf("datastore: unexpected type %T in MGET result", res)
		}
	}
	return values, nil
}

// Delete removes keys.
func (c *Client) Delete(ctx context.Context, keys ...*keyfactory.Key) error {
	if len(keys) == 0 {
		return nil
	}
	rsKeys := make([]string, len(keys))
	for i, key := range keys {
		rsKeys[i] = key.RedisKey()
	}
	if err := c.rdb.Del(ctx, rsKeys...).Err(); err != nil {
		return fmt.Errorf("datastore: failed to delete keys: %w", err)
	}
	return nil
}

// DeleteMatch removes every key matching the glob keyMatch and returns how
// many were matched.
func (c *Client) DeleteMatch(ctx context.Context, keyMatch *keyfactory.Key) (int, error) {
	if keyMatch == nil {
		return 0, nil
	}
	keys, err := c.ScanKeys(ctx, keyMatch)
	if err != nil {
		return 0, err
	}
	if err := c.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key *keyfactory.Key) (bool, error) {
	if key == nil {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, key.RedisKey()).Result()
	if err != nil {
		return false, fmt.Errorf("datastore: %w", err)
	}
	return n > 0, nil
}

// Incr atomically adds delta to the integer stored under key and returns the
// new value. A missing key counts from zero. A non-zero expiration is
// refreshed on every call.
func (c *Client) Incr(ctx context.Context, key *keyfactory.Key, delta int64, expiration time.Duration) (int64, error) {
	if key == nil {
		return 0, errors.New("datastore: key must not be nil")
	}
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key.RedisKey(), delta)
		if expiration > 0 {
			pipe.Expire(ctx, key.RedisKey(), expiration)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("datastore: failed to increment %q: %w", key, err)
	}
	return incr.Val(), nil
}

// ScanPage returns one SCAN page of keys matching keyMatch.
//   - The number of keys per page is not exact.
//   - A key may be returned more than once across pages.
//   - Keys added or removed during iteration may or may not be returned.
func (c *Client) ScanPage(
	ctx context.Context,
	cursor uint64,
	limit int,
	keyMatch *keyfactory.Key,
) (keys []*keyfactory.Key, nextCursor uint64, err error) {
	if limit <= 0 || limit > maxScanCount {
		limit = maxScanCount
	}
	rsKeys, nextCursor, err := c.rdb.Scan(ctx, cursor, keyMatch.RedisKey(), int64(limit)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("datastore: failed scanning keys: %w", err)
	}
	keys = make([]*keyfactory.Key, len(rsKeys))
	for i, rsKey := range rsKeys {
		if keys[i], err = keyfactory.ParseRedisKey(rsKey); err != nil {
			return nil, 0, fmt.Errorf("datastore: %w", err)
		}
	}
	return keys, nextCursor, nil
}

// ScanKeys returns every distinct key matching keyMatch without blocking the
// server. Keys changing during the scan may be missed.
func (c *Client) ScanKeys(ctx context.Context, keyMatch *keyfactory.Key) ([]*keyfactory.Key, error) {
	var (
		cursor uint64
		keys   []*keyfactory.Key
		seen   = make(map[string]struct{})
	)
	for {
		page, next, err := c.ScanPage(ctx, cursor, maxScanCount, keyMatch)
		if err != nil {
			return nil, err
		}
		for _, k := range page {
			if _, ok := seen[k.RedisKey()]; ok {
				continue
			}
			seen[k.RedisKey()] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
