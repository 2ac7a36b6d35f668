package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/pkg/logger"
)

const sqlPrefix = "sql:"

// Client caches generated SQL keyed by the normalized question hash.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

// CachedSQL is what gets stored per question.
type CachedSQL struct {
	Question string    `json:"question"`
	SQL      string    `json:"sql"`
	Model    string    `json:"model"`
	CachedAt time.Time `json:"cached_at"`
}

func NewClient(ctx context.Context, host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func sqlKey(questionHash string) string {
	return sqlPrefix + questionHash
}

func (c *Client) SetSQL(ctx context.Context, questionHash string, entry CachedSQL) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	err = c.client.Set(ctx, sqlKey(questionHash), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set sql cache: %w", err)
	}

	logger.Debug("SQL cached", zap.String("question_hash", questionHash), zap.Duration("ttl", c.ttl))
	return nil
}

func (c *Client) GetSQL(ctx context.Context, questionHash string) (*CachedSQL, bool, error) {
	data, err := c.client.Get(ctx, sqlKey(questionHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get sql cache: %w", err)
	}

	var entry CachedSQL
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	logger.Debug("SQL cache hit", zap.String("question_hash", questionHash))
	return &entry, true, nil
}

// InvalidateSQL drops every cached statement, e.g. after the dataset is
// reloaded.
func (c *Client) InvalidateSQL(ctx context.Context) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, sqlPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		removed++
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("SQL cache invalidated", zap.Int("keys", removed))
	return removed, nil
}
