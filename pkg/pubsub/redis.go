package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/realm-live/pkg/log"
)

// redisPublishClient is the part of a go-redis client the publisher uses.
type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher exports events with Redis PUBLISH on per-project channels.
type RedisPublisher struct {
	client redisPublishClient
}

// NewRedisPublisher connects to Redis and returns a publisher.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPublisher{client: client}, nil
}

// Publish sends the event to channel. Having no subscribers is not an error.
func (r *RedisPublisher) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := r.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	if receivers == 0 {
		l := log.Ctx(ctx)
		l.Debug().Str("channel", channel).Str(log.FieldEventType, event.Type).Msg("event published with no subscribers")
	}
	return nil
}

func (r *RedisPublisher) Close() error {
	return r.client.Close()
}
