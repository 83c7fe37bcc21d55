package services

import (
	"autoservice/internal/models"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPredictionCache memoizes predictions in Redis. Failures only cost a
// recomputation, so they are logged and never returned.
type RedisPredictionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPredictionCache connects to addr and verifies the connection
func NewRedisPredictionCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisPredictionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisPredictionCache{client: client, ttl: ttl}, nil
}

// targetPrefix is the key prefix of every prediction of id. The id is hashed
// since custom preset ids may contain glob metacharacters.
func targetPrefix(id string) string {
	sum := sha1.Sum([]byte(id))
	return "autoservice:predict:" + hex.EncodeToString(sum[:])[:16] + ":"
}

// predictionKey keys a prediction by target id and a hash of the fingerprint
func predictionKey(id string, fp models.PcFingerprint) string {
	h := sha1.New()
	for _, v := range fp.Vector() {
		h.Write([]byte(strconv.FormatFloat(v, 'g', -1, 64)))
		h.Write([]byte{0})
	}
	return targetPrefix(id) + hex.EncodeToString(h.Sum(nil))[:16]
}

func invalidationPattern(id string) string {
	return targetPrefix(id) + "*"
}

func (c *RedisPredictionCache) Get(ctx context.Context, id string, fp models.PcFingerprint) (models.Prediction, bool) {
	val, err := c.client.Get(ctx, predictionKey(id, fp)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Prediction{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "prediction cache get", "target_id", id, "error", err)
		return models.Prediction{}, false
	}
	var p models.Prediction
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return models.Prediction{}, false
	}
	return p, true
}

func (c *RedisPredictionCache) Set(ctx context.Context, fp models.PcFingerprint, p models.Prediction) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, predictionKey(p.TargetID, fp), data, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "prediction cache set", "target_id", p.TargetID, "error", err)
	}
}

// Invalidate removes every cached prediction of id
func (c *RedisPredictionCache) Invalidate(ctx context.Context, id string) {
	iter := c.client.Scan(ctx, 0, invalidationPattern(id), 0).Iterator()
	pipe := c.client.Pipeline()
	n := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		n++
	}
	if err := iter.Err(); err != nil {
		slog.WarnContext(ctx, "prediction cache scan", "target_id", id, "error", err)
		return
	}
	if n == 0 {
		return
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "prediction cache invalidate", "target_id", id, "error", err)
	}
}

func (c *RedisPredictionCache) Close() error {
	return c.client.Close()
}
