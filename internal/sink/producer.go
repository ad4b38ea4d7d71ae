package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v9"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// StreamProducer appends successfully stored events onto the per-tenant
// stream the streaming rule runner (C7) consumes from.
type StreamProducer interface {
	Append(ctx context.Context, tenantID string, event cim.Event) error
}

// RedisStreamProducer appends to "<keyPrefix>:<tenant>" Redis Streams
// (default prefix "siem:events"), capped with an approximate MAXLEN
// (spec.md §4.3), via go-redis/redis/v9's XAdd.
type RedisStreamProducer struct {
	client    redis.UniversalClient
	keyPrefix string
	maxLen    int64
}

// NewRedisStreamProducer builds a producer against client, using
// keyPrefix:<tenant> as the stream key.
func NewRedisStreamProducer(client redis.UniversalClient, keyPrefix string, maxLen int64) *RedisStreamProducer {
	if keyPrefix == "" {
		keyPrefix = "siem:events"
	}
	return &RedisStreamProducer{client: client, keyPrefix: keyPrefix, maxLen: maxLen}
}

func (p *RedisStreamProducer) streamKey(tenantID string) string {
	return fmt.Sprintf("%s:%s", p.keyPrefix, tenantID)
}

func (p *RedisStreamProducer) Append(ctx context.Context, tenantID string, event cim.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sink: marshal event for stream append: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.streamKey(tenantID),
		Values: map[string]interface{}{"event": string(payload)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Err()
}
