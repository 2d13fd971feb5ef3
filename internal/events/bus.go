// Package events publishes deployment lifecycle events over Redis Streams so
// sibling processes (dashboards, audit consumers) can follow agent rollouts.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const deployStream = "kiln:deployments"

// DeploymentEvent records one pipeline outcome.
type DeploymentEvent struct {
	ID        string    `json:"id"`
	AgentName string    `json:"agent_name"`
	Action    string    `json:"action"` // "deployed", "saved", "deleted"
	Sandbox   bool      `json:"sandbox"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus is a Redis Streams publisher for deployment events.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewBus connects to Redis and verifies the connection.
func NewBus(redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// Publish appends an event to the deployment stream. A nil Bus is a no-op
// so callers can treat the bus as optional.
func (b *Bus) Publish(ctx context.Context, ev DeploymentEvent) error {
	if b == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: deployStream,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish deployment event: %w", err)
	}
	b.logger.Debug("published deployment event",
		zap.String("agent", ev.AgentName),
		zap.String("action", ev.Action))
	return nil
}

// Subscribe listens for deployment events. Cancel the context to stop.
func (b *Bus) Subscribe(ctx context.Context) <-chan DeploymentEvent {
	ch := make(chan DeploymentEvent, 16)
	go func() {
		defer close(ch)
		lastID := "$"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{deployStream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev DeploymentEvent
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.rdb.Close()
}
