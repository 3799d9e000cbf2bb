package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"walletwatch/internal/models"
)

// RedisStreamSink publishes sealed batches to a Redis stream so downstream
// consumers can run in a separate process
type RedisStreamSink struct {
	client *redis.Client
	stream string
}

// NewRedisStreamSink connects to Redis and verifies the connection
func NewRedisStreamSink(ctx context.Context, url, stream string) (*RedisStreamSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStreamSink{client: client, stream: stream}, nil
}

// Flush appends the batch to the stream as one JSON entry
func (s *RedisStreamSink) Flush(ctx context.Context, batch models.EventBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"batch": payload,
			"size":  batch.Size(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd batch: %w", err)
	}
	return nil
}

// Close releases the Redis connection
func (s *RedisStreamSink) Close() error {
	return s.client.Close()
}

// LogSink logs flushed batches; used when no Redis URL is configured
type LogSink struct{}

// Flush implements Sink
func (LogSink) Flush(_ context.Context, batch models.EventBatch) error {
	kinds := make([]string, 0, batch.Size())
	for _, event := range batch.Events {
		kinds = append(kinds, string(event.Kind))
	}
	slog.Info("Batch sealed", "size", batch.Size(), "kinds", kinds)
	return nil
}
