package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// RedisBroker fans events out over Redis pub/sub so multiple service
// instances can serve one session. Events are JSON on the wire.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, evt domain.Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, raw).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel)
	// Force the subscription to be established before we return; otherwise
	// an immediate Publish can race past us.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var evt domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("realtime: drop malformed event on %s: %v", channel, err)
				continue
			}
			out <- evt
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				log.Printf("realtime: close subscription %s: %v", channel, err)
			}
		})
	}
	return out, cancel, nil
}
