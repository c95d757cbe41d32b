// Package reports retains batch validation reports in Redis so operators can
// fetch them after the request that produced them has returned.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"graphtrack/api/internal/validation"
)

// DefaultTTL applies when the store is created with a non-positive TTL.
const DefaultTTL = 24 * time.Hour

var ErrNotFound = errors.New("report not found or expired")

// Stored wraps a report with the time it was saved.
type Stored struct {
	Report  validation.Report `json:"report"`
	SavedAt time.Time         `json:"savedAt"`
}

// RedisStore keeps reports as JSON values under a key prefix with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore parses redisURL and checks the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "report:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Save stores report under report.ID. The id must be set.
func (s *RedisStore) Save(ctx context.Context, report validation.Report) error {
	if report.ID == "" {
		return fmt.Errorf("save report: empty id")
	}
	payload, err := json.Marshal(Stored{Report: report, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := s.client.Set(ctx, s.key(report.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Stored, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Stored{}, ErrNotFound
	}
	if err != nil {
		return Stored{}, fmt.Errorf("get report: %w", err)
	}

	var stored Stored
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Stored{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return stored, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
