package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers deliveries that were fully processed. It is an optimisation
// only; the order state machine already makes redelivery harmless.
type Deduper interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	Remember(ctx context.Context, provider, eventID string) error
}

type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, eventID)
}

func (d *RedisDeduper) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupeKey(provider, eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Remember(ctx context.Context, provider, eventID string) error {
	return d.client.Set(ctx, dedupeKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
}

// NopDeduper is used when no cache is configured.
type NopDeduper struct{}

func (NopDeduper) Seen(context.Context, string, string) (bool, error) { return false, nil }
func (NopDeduper) Remember(context.Context, string, string) error     { return nil }
