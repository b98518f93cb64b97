package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/pkg/logger"
)

const keyPrefix = "docqa:session:"

// Client stores session snapshots so a gateway restart can resume them.
type Client struct {
	client *redis.Client
}

func NewClient(addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func snapshotKey(sessionID string) string {
	return keyPrefix + sessionID
}

func (c *Client) SaveSnapshot(ctx context.Context, sessionID string, snapshot interface{}, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = c.client.Set(ctx, snapshotKey(sessionID), data, ttl).Err()
	metrics.SnapshotOps.WithLabelValues("save", metrics.Status(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	logger.Debug("Session snapshot saved", zap.String("session_id", sessionID), zap.Duration("ttl", ttl))
	return nil
}

// GetSnapshot decodes the stored snapshot into out. It reports false when
// no snapshot exists.
func (c *Client) GetSnapshot(ctx context.Context, sessionID string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		metrics.SnapshotOps.WithLabelValues("get", "miss").Inc()
		return false, nil
	}
	metrics.SnapshotOps.WithLabelValues("get", metrics.Status(err)).Inc()
	if err != nil {
		return false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	logger.Debug("Session snapshot loaded", zap.String("session_id", sessionID))
	return true, nil
}

func (c *Client) DeleteSnapshot(ctx context.Context, sessionID string) error {
	err := c.client.Del(ctx, snapshotKey(sessionID)).Err()
	metrics.SnapshotOps.WithLabelValues("delete", metrics.Status(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
