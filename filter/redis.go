package filter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pubmed-graph/compress"
)

const redisKeyPrefix = "pubmed:filter:"

// RedisCache speichert komprimierte JSON-Ergebnisse unter dem SHA-256 des Abfrageschlüssels.
type RedisCache struct {
	client  *redis.Client
	encoder compress.Compress
	ttl     time.Duration
}

func NewRedisCache(client *redis.Client, encoder compress.Compress, ttl time.Duration) *RedisCache {
	if encoder == nil {
		encoder = compress.NewNop()
	}
	return &RedisCache{client: client, encoder: encoder, ttl: ttl}
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}

func (r *RedisCache) Get(ctx context.Context, key string) (*Results, bool, error) {
	data, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	raw, err := r.encoder.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s payload: %w", r.encoder.Name(), err)
	}
	res := newResults()
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, res *Results) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	data, err := r.encoder.Encode(raw)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKey(key), data, r.ttl).Err()
}
