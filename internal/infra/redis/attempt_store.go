package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// AttemptStore persists resume snapshots as JSON values with a TTL, keyed
// session:{id}:attempt:{participantId}. A reconnecting participant loads
// their progress and current question from here instead of re-deriving it.
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{client: client, ttl: ttl}
}

func (s *AttemptStore) SaveAttempt(ctx context.Context, sessionID string, snap domain.AttemptSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID, snap.ParticipantID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) LoadAttempt(ctx context.Context, sessionID, participantID string) (domain.AttemptSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID, participantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AttemptSnapshot{}, false, nil
	}
	if err != nil {
		return domain.AttemptSnapshot{}, false, fmt.Errorf("load attempt: %w", err)
	}
	var snap domain.AttemptSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.AttemptSnapshot{}, false, fmt.Errorf("decode attempt: %w", err)
	}
	return snap, true, nil
}

func (s *AttemptStore) DeleteAttempt(ctx context.Context, sessionID, participantID string) error {
	return s.client.Del(ctx, s.key(sessionID, participantID)).Err()
}

func (s *AttemptStore) key(sessionID, participantID string) string {
	return "session:" + sessionID + ":attempt:" + participantID
}
