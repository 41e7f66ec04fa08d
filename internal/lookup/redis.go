package lookup

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/config"
)

// RedisSink stores each run's lookup table in a Redis hash
type RedisSink struct {
	client *redis.Client
	config config.RedisConfig
	logger *zap.Logger
}

// NewRedisSink connects to Redis and verifies the connection
func NewRedisSink(cfg config.RedisConfig, logger *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	opts.MinIdleConns = cfg.MinIdleConns

	sink := newRedisSink(redis.NewClient(opts), cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sink.client.Ping(ctx).Err(); err != nil {
		sink.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis lookup sink initialized",
		zap.String("redis_url", maskRedisURL(cfg.URL)),
		zap.Int("pool_size", opts.PoolSize),
		zap.Duration("ttl", cfg.TTL))

	return sink, nil
}

func newRedisSink(client *redis.Client, cfg config.RedisConfig, logger *zap.Logger) *RedisSink {
	return &RedisSink{client: client, config: cfg, logger: logger}
}

// Save writes the table into <prefix>:lookup:<run id> in one transaction
func (s *RedisSink) Save(ctx context.Context, run Run, table anonymizer.IdentityTable) (string, error) {
	key := s.key(run.ID)
	if len(table) == 0 {
		return "redis:" + key, nil
	}

	values := make([]interface{}, 0, len(table)*2)
	for _, original := range table.Originals() {
		values = append(values, original, table[original])
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values...)
	if s.config.TTL > 0 {
		pipe.Expire(ctx, key, s.config.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to store lookup table", zap.String("run_id", run.ID), zap.Error(err))
		return "", fmt.Errorf("failed to store lookup table: %w", err)
	}

	s.logger.Debug("Lookup table stored",
		zap.String("key", key),
		zap.Int("entries", len(table)))

	return "redis:" + key, nil
}

// Load reads a stored table back
func (s *RedisSink) Load(ctx context.Context, runID string) (anonymizer.IdentityTable, error) {
	entries, err := s.client.HGetAll(ctx, s.key(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load lookup table: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return anonymizer.IdentityTable(entries), nil
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *RedisSink) key(runID string) string {
	if s.config.KeyPrefix == "" {
		return "lookup:" + runID
	}
	return s.config.KeyPrefix + ":lookup:" + runID
}

// maskRedisURL hides the password in a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "redis://***"
	}
	return u.Redacted()
}
