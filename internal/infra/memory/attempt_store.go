package memory

import (
	"context"
	"sync"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// AttemptStore keeps resume snapshots in process memory. Good enough for a
// single instance; distributed deployments use the Redis variant.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]map[string]domain.AttemptSnapshot
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]map[string]domain.AttemptSnapshot)}
}

func (s *AttemptStore) SaveAttempt(_ context.Context, sessionID string, snap domain.AttemptSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts[sessionID] == nil {
		s.attempts[sessionID] = make(map[string]domain.AttemptSnapshot)
	}
	s.attempts[sessionID][snap.ParticipantID] = snap
	return nil
}

func (s *AttemptStore) LoadAttempt(_ context.Context, sessionID, participantID string) (domain.AttemptSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.attempts[sessionID][participantID]
	return snap, ok, nil
}

func (s *AttemptStore) DeleteAttempt(_ context.Context, sessionID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byParticipant, ok := s.attempts[sessionID]; ok {
		delete(byParticipant, participantID)
		if len(byParticipant) == 0 {
			delete(s.attempts, sessionID)
		}
	}
	return nil
}
