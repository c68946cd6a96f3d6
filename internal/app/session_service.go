package app

import (
	"context"
	"log"
	"time"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/realtime"
)

// SessionRepository abstracts how live sessions are stored (in-memory,
// Redis-backed, etc). Seed is called at most once per missing id.
type SessionRepository interface {
	GetOrCreate(sessionID string, seed func() *Session) *Session
	Get(sessionID string) (*Session, bool)
	DeleteIfEmpty(sessionID string)
}

// QuizRepository loads quiz content and metadata (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptStore persists per-participant resume state at the service
// boundary; a reconnecting participant rehydrates from here, never from a
// locally re-derived guess.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, sessionID string, snap domain.AttemptSnapshot) error
	LoadAttempt(ctx context.Context, sessionID, participantID string) (domain.AttemptSnapshot, bool, error)
	DeleteAttempt(ctx context.Context, sessionID, participantID string) error
}

// SessionService owns the session lifecycle (pending, active, finished) and
// fans transitions out through the realtime broker. All mutation funnels
// through the per-session lock: single writer per session.
type SessionService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	attempts  AttemptStore
	broker    realtime.Broker
	maxRounds int

	// defaultDurationMinutes backfills quizzes stored without a duration.
	// Zero both here and on the quiz makes the session untimed.
	defaultDurationMinutes int
}

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, attempts AttemptStore, broker realtime.Broker, maxRounds, defaultDurationMinutes int) *SessionService {
	return &SessionService{
		sessions:               sessions,
		quizzes:                quizzes,
		attempts:               attempts,
		broker:                 broker,
		maxRounds:              maxRounds,
		defaultDurationMinutes: defaultDurationMinutes,
	}
}

// JoinResult is what a connecting client needs to render its view.
type JoinResult struct {
	Participant  domain.Participant        `json:"participant"`
	Status       domain.SessionStatus      `json:"status"`
	Deadline     time.Time                 `json:"deadline"`
	RemainingSec int                       `json:"remainingSec"`
	Participants []domain.Participant      `json:"participants"`
	Resume       *domain.AttemptSnapshot   `json:"resume,omitempty"`
}

// Join admits a participant into the waiting room, or back into a running
// session when they are resuming an existing attempt.
func (s *SessionService) Join(ctx context.Context, sessionID, participantID, displayName string, role domain.Role, pin string) (JoinResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, sessionID)
	if err != nil {
		return JoinResult{}, err
	}

	session := s.sessions.GetOrCreate(sessionID, func() *Session {
		if quiz.DurationMinutes <= 0 {
			quiz.DurationMinutes = s.defaultDurationMinutes
		}
		return NewSession(quiz, s.maxRounds)
	})

	var resume *domain.AttemptSnapshot
	if session.Status().IsActive() && role == domain.RoleStudent {
		if _, inRoster := session.roster.Get(participantID); !inRoster {
			snap, found, err := s.attempts.LoadAttempt(ctx, sessionID, participantID)
			if err != nil {
				return JoinResult{}, err
			}
			if !found {
				return JoinResult{}, domain.ErrSessionNotJoinable
			}
			resume = &snap
		}
	}

	result, events, err := session.join(participantID, displayName, role, pin, resume)
	if err != nil {
		return JoinResult{}, err
	}
	s.publish(ctx, events)
	return result, nil
}

// Start moves a session from pending to active. Teacher-only. Calling it on
// an already-active session returns the current state instead of an error.
func (s *SessionService) Start(ctx context.Context, sessionID, participantID string) (SessionState, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionState{}, domain.ErrSessionNotFound
	}
	state, events, err := session.start(participantID)
	if err != nil {
		return SessionState{}, err
	}
	s.publish(ctx, events)
	return state, nil
}

// SubmitAnswer grades one answer within the submitting participant's current
// round, updates their score and ranking, and persists the resume snapshot.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID, participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}
	result, snap, events, err := session.submitAnswer(participantID, sub)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	if result.Completed {
		if err := s.attempts.DeleteAttempt(ctx, sessionID, participantID); err != nil {
			log.Printf("session %s: delete attempt for %s: %v", sessionID, participantID, err)
		}
	} else if err := s.attempts.SaveAttempt(ctx, sessionID, snap); err != nil {
		log.Printf("session %s: save attempt for %s: %v", sessionID, participantID, err)
	}

	s.publish(ctx, events)
	return result, nil
}

// TimeUp force-completes a participant's attempt when their countdown hits
// zero. Safe to call twice; the second call is a no-op.
func (s *SessionService) TimeUp(ctx context.Context, sessionID, participantID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	events, changed := session.timeUp(participantID)
	if !changed {
		return
	}
	if err := s.attempts.DeleteAttempt(ctx, sessionID, participantID); err != nil {
		log.Printf("session %s: delete attempt for %s: %v", sessionID, participantID, err)
	}
	s.publish(ctx, events)
}

// Finish ends the session by teacher override. Finishing a finished session
// is a no-op.
func (s *SessionService) Finish(ctx context.Context, sessionID, participantID string) (SessionState, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionState{}, domain.ErrSessionNotFound
	}
	state, events, err := session.finish(participantID)
	if err != nil {
		return SessionState{}, err
	}
	s.publish(ctx, events)
	return state, nil
}

// Leave removes the participant for good: membership, round state, and
// resume snapshot. Idempotent; a student leaving never ends the session.
func (s *SessionService) Leave(ctx context.Context, sessionID, participantID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	events := session.leave(participantID)
	if err := s.attempts.DeleteAttempt(ctx, sessionID, participantID); err != nil {
		log.Printf("session %s: delete attempt for %s: %v", sessionID, participantID, err)
	}
	s.publish(ctx, events)
	if session.isEmpty() {
		s.sessions.DeleteIfEmpty(sessionID)
	}
}

// Disconnect marks a participant offline without forfeiting their attempt;
// the resume snapshot stays so a reconnect rehydrates it.
func (s *SessionService) Disconnect(ctx context.Context, sessionID, participantID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	events := session.setConnected(participantID, false)
	s.publish(ctx, events)
}

// Leaderboard recomputes the scoreboard on demand (explicit refresh).
func (s *SessionService) Leaderboard(_ context.Context, sessionID string) (domain.Leaderboard, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrSessionNotFound
	}
	return session.leaderboard(), nil
}

// RankOf returns one participant's (rank, total), pushing the refreshed
// value to their personal channel as well.
func (s *SessionService) RankOf(ctx context.Context, sessionID, participantID string) (int, int, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return 0, 0, domain.ErrSessionNotFound
	}
	rank, total, err := session.rankOf(participantID)
	if err != nil {
		return 0, 0, err
	}
	evt, err := domain.NewEvent(domain.EventRankUpdated, sessionID, domain.RankUpdate{
		ParticipantID: participantID,
		Rank:          rank,
		Total:         total,
	})
	if err == nil {
		s.publish(ctx, []outgoing{{realtime.PersonalChannel(sessionID, participantID), evt}})
	}
	return rank, total, nil
}

// State returns the session's current snapshot for reconcile pulls.
func (s *SessionService) State(_ context.Context, sessionID string) (SessionState, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionState{}, domain.ErrSessionNotFound
	}
	return session.State(), nil
}

// outgoing pairs an event with its destination channel. Publications happen
// after the session lock is released so a slow broker cannot serialize the
// whole session behind a network round trip.
type outgoing struct {
	channel string
	evt     domain.Event
}

func (s *SessionService) publish(ctx context.Context, events []outgoing) {
	for _, out := range events {
		if err := s.broker.Publish(ctx, out.channel, out.evt); err != nil {
			log.Printf("publish %s to %s: %v", out.evt.Type, out.channel, err)
		}
	}
}
