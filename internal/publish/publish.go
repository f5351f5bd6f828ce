package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Client is the subset of the Redis client the publisher needs.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// Publisher stores the latest status document for a tier in Redis and
// announces it on a channel so other routers and dashboards can follow.
type Publisher struct {
	client  Client
	log     *slog.Logger
	key     string
	channel string
	timeout time.Duration
}

// NewRedisPublisher connects to the Redis server at url (redis://...).
func NewRedisPublisher(url string, tier string, logger *slog.Logger) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewPublisher(client, tier, logger), nil
}

func NewPublisher(client Client, tier string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:  client,
		log:     logger,
		key:     "drift:api-router:" + tier + ":status",
		channel: "drift:api-router:" + tier + ":updates",
		timeout: 2 * time.Second,
	}
}

// Publish stores status and notifies subscribers with the pass outcome.
func (publisher *Publisher) Publish(ctx context.Context, status []byte, outcome string) error {
	ctx, cancel := context.WithTimeout(ctx, publisher.timeout)
	defer cancel()

	if err := publisher.client.Set(ctx, publisher.key, status, 0).Err(); err != nil {
		return fmt.Errorf("store status: %w", err)
	}
	if err := publisher.client.Publish(ctx, publisher.channel, outcome).Err(); err != nil {
		return fmt.Errorf("announce status: %w", err)
	}
	publisher.log.Debug("published status", "key", publisher.key, "outcome", outcome)
	return nil
}

func (publisher *Publisher) Close() {
	if publisher.client != nil {
		_ = publisher.client.Close()
	}
}
