// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis stores checkpoints in Redis so resumes survive process restarts
// and work across replicas. Records live under one hash per resume key,
// refreshed with a TTL on every write.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis wraps an existing client. A zero ttl keeps records until
// cleared.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "checkpoint")),
	}
}

func (r *Redis) hashKey(key string) string {
	return "cascade:checkpoint:" + key
}

// Load fetches a node's record.
func (r *Redis) Load(ctx context.Context, key, nodeID string) (Record, bool, error) {
	raw, err := r.client.HGet(ctx, r.hashKey(key), nodeID).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("checkpoint load %s/%s: %w", key, nodeID, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// A corrupt record is treated as a miss so the node simply reruns.
		r.logger.Warn("discarding corrupt checkpoint record",
			zap.String("key", key), zap.String("node_id", nodeID), zap.Error(err))
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Save stores a node's record and refreshes the key TTL.
func (r *Redis) Save(ctx context.Context, key string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("checkpoint encode %s/%s: %w", key, rec.NodeID, err)
	}
	hk := r.hashKey(key)
	if err := r.client.HSet(ctx, hk, rec.NodeID, raw).Err(); err != nil {
		return fmt.Errorf("checkpoint save %s/%s: %w", key, rec.NodeID, err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, hk, r.ttl).Err(); err != nil {
			return fmt.Errorf("checkpoint expire %s: %w", key, err)
		}
	}
	return nil
}

// Clear drops all records under a resume key.
func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.hashKey(key)).Err(); err != nil {
		return fmt.Errorf("checkpoint clear %s: %w", key, err)
	}
	return nil
}
