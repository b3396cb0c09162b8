package engine

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultHeartbeatTTL is how long a heartbeat key stays alive without being
// refreshed. A running execution row with an expired key means the process
// died mid-run.
const DefaultHeartbeatTTL = 30 * time.Second

const heartbeatKeyPrefix = "execution:heartbeat:"

// Heartbeat tracks liveness of running executions in Redis using TTL keys.
type Heartbeat struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHeartbeat creates a heartbeat tracker. A zero ttl uses the default.
func NewHeartbeat(client *redis.Client, ttl time.Duration) *Heartbeat {
	if ttl <= 0 {
		ttl = DefaultHeartbeatTTL
	}
	return &Heartbeat{client: client, ttl: ttl}
}

// Beat refreshes the heartbeat key for an execution.
func (h *Heartbeat) Beat(ctx context.Context, executionID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return h.client.Set(ctx, heartbeatKeyPrefix+executionID, now, h.ttl).Err()
}

// Alive reports whether an execution's heartbeat key still exists.
func (h *Heartbeat) Alive(ctx context.Context, executionID string) (bool, error) {
	n, err := h.client.Exists(ctx, heartbeatKeyPrefix+executionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes the heartbeat key once an execution reaches a terminal state.
func (h *Heartbeat) Clear(ctx context.Context, executionID string) error {
	return h.client.Del(ctx, heartbeatKeyPrefix+executionID).Err()
}
