package realtime

import (
	"context"
	"sync"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// MemoryBroker is an in-process Broker for single-instance deployments and
// tests. Slow subscribers lose their oldest buffered event rather than
// blocking the publisher.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.Event]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[chan domain.Event]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, evt domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, channel string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 16)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan domain.Event]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[channel]; ok {
			if _, subscribed := set[ch]; subscribed {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, channel)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel, nil
}
