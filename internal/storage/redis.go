package storage

import (
	"context"
	"errors"
	"fmt"

	"metricgovernor/internal/models"

	"github.com/redis/go-redis/v9"
)

const allSources = "all"

// RedisStorage keeps report history in Redis lists, newest at the head. Each
// report is pushed to its source list and to a combined list; retention caps
// both lists independently.
type RedisStorage struct {
	client    redis.UniversalClient
	prefix    string
	retention int
}

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(config Config) (*RedisStorage, error) {
	if config.Redis.Addr == "" {
		return nil, fmt.Errorf("address is required for Redis storage")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return newRedisStorage(client, config.Redis.KeyPrefix, config.Retention), nil
}

func newRedisStorage(client redis.UniversalClient, prefix string, retention int) *RedisStorage {
	if prefix == "" {
		prefix = "metricgovernor"
	}
	return &RedisStorage{client: client, prefix: prefix, retention: retention}
}

func (rs *RedisStorage) key(source string) string {
	return fmt.Sprintf("%s:reports:%s", rs.prefix, source)
}

// SaveReport pushes report onto its source list and the combined list
func (rs *RedisStorage) SaveReport(ctx context.Context, report *models.StatusReport) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}

	sourceKey := rs.key("source:" + report.Source)
	allKey := rs.key(allSources)

	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, sourceKey, data)
		pipe.LPush(ctx, allKey, data)
		if rs.retention > 0 {
			pipe.LTrim(ctx, sourceKey, 0, int64(rs.retention-1))
			pipe.LTrim(ctx, allKey, 0, int64(rs.retention-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}
	return nil
}

// Reports returns reports newest first
func (rs *RedisStorage) Reports(ctx context.Context, source string, limit int) ([]*models.StatusReport, error) {
	key := rs.key(allSources)
	if source != "" {
		key = rs.key("source:" + source)
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	items, err := rs.client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}

	reports := make([]*models.StatusReport, 0, len(items))
	for _, item := range items {
		report, err := unmarshalReport([]byte(item))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// LatestReport returns the newest report for source
func (rs *RedisStorage) LatestReport(ctx context.Context, source string) (*models.StatusReport, error) {
	key := rs.key(allSources)
	if source != "" {
		key = rs.key("source:" + source)
	}

	item, err := rs.client.LIndex(ctx, key, 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read latest report: %w", err)
	}
	return unmarshalReport([]byte(item))
}

// Ping checks the Redis connection
func (rs *RedisStorage) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
