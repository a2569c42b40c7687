package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"ecoquest/internal/retry"
)

// DefaultChannel is the pub/sub channel shared by all instances
const DefaultChannel = "ecoquest:events"

// RedisBroker publishes events to Redis so every instance's hub can deliver them
type RedisBroker struct {
	client  *redis.Client
	channel string
	policy  retry.Policy
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisBroker creates a broker on channel, or DefaultChannel when empty
func NewRedisBroker(client *redis.Client, channel string) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{client: client, channel: channel, policy: retry.Default()}
}

// Publish sends evt to every subscribed instance
func (b *RedisBroker) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return retry.Do(ctx, "redis publish", b.policy, func(ctx context.Context) error {
		return b.client.Publish(ctx, b.channel, payload).Err()
	})
}

// Forward delivers every event received on the channel to hub until ctx is cancelled
func (b *RedisBroker) Forward(ctx context.Context, hub *Hub) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	log.Printf("Realtime fan-out subscribed to redis channel %s", b.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("Dropping malformed realtime event: %v", err)
				continue
			}
			if err := hub.Publish(ctx, evt); err != nil {
				return nil
			}
		}
	}
}
