package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/app"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute)

	_ = store.GetOrCreate("session-1", func() *app.Session {
		return app.NewSession(domain.Quiz{ID: "session-1", DurationMinutes: 5}, 0)
	})
	if !mr.Exists("session:live:session-1") {
		t.Fatalf("expected liveness key to be set")
	}

	store.DeleteIfEmpty("session-1")
	if mr.Exists("session:live:session-1") {
		t.Fatalf("expected liveness key to be removed")
	}
}
