package realtime

import (
	"context"
	"testing"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

func TestMemoryBrokerDeliversPerChannel(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()

	sessionCh, cancelSession, err := broker.Subscribe(ctx, SessionChannel("s1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelSession()
	personalCh, cancelPersonal, err := broker.Subscribe(ctx, PersonalChannel("s1", "u1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelPersonal()

	evt, err := domain.NewEvent(domain.EventRankUpdated, "s1", domain.RankUpdate{ParticipantID: "u1", Rank: 1, Total: 3})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := broker.Publish(ctx, PersonalChannel("s1", "u1"), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := <-personalCh
	if got.Type != domain.EventRankUpdated || got.ID != evt.ID {
		t.Fatalf("unexpected event %+v", got)
	}
	select {
	case leaked := <-sessionCh:
		t.Fatalf("session channel must not receive personal events, got %+v", leaked)
	default:
	}
}

func TestMemoryBrokerCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()

	ch, cancel, err := broker.Subscribe(ctx, SessionChannel("s1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Fatalf("expected closed channel after cancel")
	}

	// Publishing to a channel with no subscribers is fine.
	evt, _ := domain.NewEvent(domain.EventSessionFinished, "s1", nil)
	if err := broker.Publish(ctx, SessionChannel("s1"), evt); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}

func TestMemoryBrokerDropsOldestWhenSlow(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker()

	ch, cancel, err := broker.Subscribe(ctx, SessionChannel("s1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Overflow the subscriber buffer; the publisher must not block and the
	// newest event must survive.
	var last domain.Event
	for i := 0; i < 40; i++ {
		evt, _ := domain.NewEvent(domain.EventParticipantsSnapshot, "s1", i)
		if err := broker.Publish(ctx, SessionChannel("s1"), evt); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		last = evt
	}

	var newest domain.Event
	for {
		select {
		case evt := <-ch:
			newest = evt
			continue
		default:
		}
		break
	}
	if newest.ID != last.ID {
		t.Fatalf("expected the newest event to survive the overflow")
	}
}

func TestChannelNames(t *testing.T) {
	if got := SessionChannel("s1"); got != "session:s1" {
		t.Fatalf("unexpected session channel %q", got)
	}
	if got := PersonalChannel("s1", "u1"); got != "session:s1:user:u1" {
		t.Fatalf("unexpected personal channel %q", got)
	}
	if got := RoleChannel("s1", domain.RoleTeacher); got != "session:s1:role:teacher" {
		t.Fatalf("unexpected role channel %q", got)
	}
}
