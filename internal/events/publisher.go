// Package events publishes slot status changes to the shared availability
// channel. Dashboards and the search index recompute lot-level counts from
// these messages.
package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/adith23/parking-automation-app/internal/domain"
)

type StatusPublisher interface {
	PublishSlotStatus(ctx context.Context, event domain.SlotStatusChangeEvent)
}

type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) PublishSlotStatus(ctx context.Context, event domain.SlotStatusChangeEvent) {
	if p.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("RedisPublisher: error marshaling status event for slot %d: %v", event.SlotID, err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		// Publication is advisory; the slot row already holds the truth.
		log.Printf("RedisPublisher: error publishing status event for slot %d: %v", event.SlotID, err)
	}
}

// Fanout forwards one status event to several publishers (Redis channel,
// websocket broadcast).
type Fanout []StatusPublisher

func (f Fanout) PublishSlotStatus(ctx context.Context, event domain.SlotStatusChangeEvent) {
	for _, p := range f {
		p.PublishSlotStatus(ctx, event)
	}
}
