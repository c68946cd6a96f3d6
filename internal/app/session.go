package app

import (
	"log"
	"sync"
	"time"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/realtime"
)

// Session is the in-memory authoritative state for one running quiz:
// lifecycle status, membership, and one round engine per live student.
// Every mutation happens under the session lock.
type Session struct {
	id        string
	name      string
	pin       string
	duration  time.Duration
	maxRounds int
	quiz      domain.Quiz
	now       func() time.Time

	mu        sync.Mutex
	status    domain.SessionStatus
	startedAt time.Time
	deadline  time.Time
	seq       uint64
	roster    *Roster
	engines   map[string]*RoundEngine
	lastRanks map[string]int
}

// SessionState is the full snapshot clients reconcile from.
type SessionState struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Status       domain.SessionStatus `json:"status"`
	Deadline     time.Time            `json:"deadline"`
	RemainingSec int                  `json:"remainingSec"`
	Participants []domain.Participant `json:"participants"`
}

// NewSession builds a session from stored quiz content and metadata.
func NewSession(quiz domain.Quiz, maxRounds int) *Session {
	return NewSessionWithClock(quiz, maxRounds, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(quiz domain.Quiz, maxRounds int, now func() time.Time) *Session {
	status := quiz.Status
	if status == "" {
		status = domain.StatusPending
	}
	return &Session{
		id:        quiz.ID,
		name:      quiz.Name,
		pin:       quiz.Pin,
		duration:  quiz.Duration(),
		maxRounds: maxRounds,
		quiz:      quiz,
		now:       now,
		status:    status,
		roster:    NewRoster(),
		engines:   make(map[string]*RoundEngine),
		lastRanks: make(map[string]int),
	}
}

// Status returns the current lifecycle phase.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsEmpty reports whether the session has no participants left.
func (s *Session) IsEmpty() bool { return s.isEmpty() }

func (s *Session) isEmpty() bool {
	return s.roster.Len() == 0
}

// State returns the reconcile snapshot.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() SessionState {
	return SessionState{
		ID:           s.id,
		Name:         s.name,
		Status:       s.status,
		Deadline:     s.deadline,
		RemainingSec: int(Remaining(s.deadline, s.now()) / time.Second),
		Participants: s.roster.List(),
	}
}

func (s *Session) nextSeqLocked() uint64 {
	s.seq++
	return s.seq
}

func (s *Session) join(participantID, displayName string, role domain.Role, pin string, restored *domain.AttemptSnapshot) (JoinResult, []outgoing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsFinished() {
		return JoinResult{}, nil, domain.ErrSessionNotJoinable
	}
	if s.pin != "" && role != domain.RoleTeacher && pin != s.pin {
		return JoinResult{}, nil, domain.ErrInvalidPin
	}

	if s.status.IsActive() && role == domain.RoleStudent {
		if _, hasEngine := s.engines[participantID]; !hasEngine {
			if restored == nil {
				return JoinResult{}, nil, domain.ErrSessionNotJoinable
			}
			s.engines[participantID] = RestoreRoundEngine(s.quiz.Questions, *restored, s.maxRounds)
		}
	}

	now := s.now()
	participant := domain.Participant{
		ID:          participantID,
		DisplayName: displayName,
		Role:        role,
		Connected:   true,
		Seq:         s.nextSeqLocked(),
		LastUpdated: now,
	}
	if existing, ok := s.roster.Get(participantID); ok {
		participant.Score = existing.Score
		participant.LastSubmission = existing.LastSubmission
	} else if restored != nil {
		participant.Score = restored.Score
	}
	if engine, ok := s.engines[participantID]; ok {
		participant.Progress = engine.Progress()
		participant.CurrentQuestionID = engine.CurrentQuestionID()
	}
	s.roster.Upsert(participant)

	var events []outgoing
	if evt, ok := s.event(domain.EventParticipantJoined, participant); ok {
		events = append(events, outgoing{realtime.SessionChannel(s.id), evt})
	}
	events = append(events, s.snapshotEventLocked()...)

	result := JoinResult{
		Participant:  participant,
		Status:       s.status,
		Deadline:     s.deadline,
		RemainingSec: int(Remaining(s.deadline, now) / time.Second),
		Participants: s.roster.List(),
	}
	if engine, ok := s.engines[participantID]; ok && s.status.IsActive() {
		snap := engine.Snapshot(participantID, participant.Score)
		result.Resume = &snap
	}
	return result, events, nil
}

func (s *Session) start(participantID string) (SessionState, []outgoing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	caller, ok := s.roster.Get(participantID)
	if !ok {
		return SessionState{}, nil, domain.ErrParticipantNotFound
	}
	if caller.Role != domain.RoleTeacher {
		return SessionState{}, nil, domain.ErrNotTeacher
	}
	switch {
	case s.status.IsFinished():
		return SessionState{}, nil, domain.ErrSessionClosed
	case s.status.IsActive():
		// Already running; return the current state, no error storm.
		return s.stateLocked(), nil, nil
	}

	s.status = domain.StatusActive
	s.startedAt = s.now()
	if s.duration > 0 {
		s.deadline = s.startedAt.Add(s.duration)
	}
	for _, p := range s.roster.List() {
		if p.Role == domain.RoleStudent {
			s.engines[p.ID] = NewRoundEngine(s.quiz.Questions, s.maxRounds)
			s.roster.Update(p.ID, func(u *domain.Participant) {
				u.CurrentQuestionID = s.engines[p.ID].CurrentQuestionID()
				u.Seq = s.nextSeqLocked()
			})
		}
	}

	var deadlineMillis int64
	if !s.deadline.IsZero() {
		deadlineMillis = s.deadline.UnixMilli()
	}
	var events []outgoing
	if evt, ok := s.event(domain.EventSessionStarted, domain.SessionStartedPayload{
		SessionID: s.id,
		Deadline:  deadlineMillis,
	}); ok {
		events = append(events, outgoing{realtime.SessionChannel(s.id), evt})
	}
	events = append(events, s.snapshotEventLocked()...)
	return s.stateLocked(), events, nil
}

func (s *Session) submitAnswer(participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, domain.AttemptSnapshot, []outgoing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.IsActive() {
		return domain.AnswerResult{}, domain.AttemptSnapshot{}, nil, domain.ErrSessionClosed
	}
	engine, ok := s.engines[participantID]
	if !ok {
		return domain.AnswerResult{}, domain.AttemptSnapshot{}, nil, domain.ErrParticipantNotFound
	}

	round := engine.Round()
	correct, completed, err := engine.Submit(sub.QuestionID, sub.AnswerID)
	if err != nil {
		return domain.AnswerResult{}, domain.AttemptSnapshot{}, nil, err
	}

	awarded := 0
	if correct {
		for _, q := range s.quiz.Questions {
			if q.ID == sub.QuestionID {
				awarded = scoreForRound(q.Points, round)
				break
			}
		}
	}

	now := s.now()
	updated, _ := s.roster.Update(participantID, func(p *domain.Participant) {
		if correct {
			p.Score += awarded
			p.LastSubmission = now
		}
		p.Progress = engine.Progress()
		p.CurrentQuestionID = engine.CurrentQuestionID()
		p.Seq = s.nextSeqLocked()
		p.LastUpdated = now
	})

	result := domain.AnswerResult{
		QuestionID: sub.QuestionID,
		Correct:    correct,
		Awarded:    awarded,
		TotalScore: updated.Score,
		Round:      round,
		Completed:  completed,
	}
	snap := engine.Snapshot(participantID, updated.Score)

	events := s.rankEventsLocked()
	if completed {
		events = append(events, s.completeLocked(participantID, engine, updated.Score)...)
	}
	return result, snap, events, nil
}

func (s *Session) timeUp(participantID string) ([]outgoing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.status.IsActive() {
		return nil, false
	}
	engine, ok := s.engines[participantID]
	if !ok {
		// Attempt already completed (or never started); nothing to force.
		return nil, false
	}
	engine.ForceComplete()

	updated, _ := s.roster.Update(participantID, func(p *domain.Participant) {
		p.Progress = engine.Progress()
		p.CurrentQuestionID = ""
		p.Seq = s.nextSeqLocked()
		p.LastUpdated = s.now()
	})
	return s.completeLocked(participantID, engine, updated.Score), true
}

// completeLocked retires a finished attempt: announces it, discards the
// round engine, and finishes the session once every attempt is done.
func (s *Session) completeLocked(participantID string, engine *RoundEngine, score int) []outgoing {
	var events []outgoing
	payload := domain.ParticipantCompletedPayload{
		ParticipantID: participantID,
		Score:         score,
		Rounds:        engine.History(),
	}
	if evt, ok := s.event(domain.EventParticipantCompleted, payload); ok {
		events = append(events,
			outgoing{realtime.SessionChannel(s.id), evt},
			outgoing{realtime.RoleChannel(s.id, domain.RoleTeacher), evt},
		)
	}
	delete(s.engines, participantID)

	if len(s.engines) == 0 {
		events = append(events, s.finishLocked()...)
	}
	return events
}

func (s *Session) finish(participantID string) (SessionState, []outgoing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	caller, ok := s.roster.Get(participantID)
	if !ok {
		return SessionState{}, nil, domain.ErrParticipantNotFound
	}
	if caller.Role != domain.RoleTeacher {
		return SessionState{}, nil, domain.ErrNotTeacher
	}
	if s.status.IsFinished() {
		return s.stateLocked(), nil, nil
	}
	events := s.finishLocked()
	return s.stateLocked(), events, nil
}

func (s *Session) finishLocked() []outgoing {
	s.status = domain.StatusFinished
	// Round state is discarded when the session ends.
	s.engines = make(map[string]*RoundEngine)

	var events []outgoing
	if evt, ok := s.event(domain.EventSessionFinished, s.leaderboardLocked()); ok {
		events = append(events, outgoing{realtime.SessionChannel(s.id), evt})
	}
	return events
}

func (s *Session) leave(participantID string) []outgoing {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roster.Remove(participantID)
	delete(s.engines, participantID)
	delete(s.lastRanks, participantID)
	return s.snapshotEventLocked()
}

func (s *Session) setConnected(participantID string, connected bool) []outgoing {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roster.Update(participantID, func(p *domain.Participant) {
		p.Connected = connected
		p.Seq = s.nextSeqLocked()
		p.LastUpdated = s.now()
	}); !ok {
		return nil
	}
	return s.snapshotEventLocked()
}

func (s *Session) leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked()
}

func (s *Session) leaderboardLocked() domain.Leaderboard {
	return RankParticipants(s.id, s.roster.List(), s.now())
}

func (s *Session) rankOf(participantID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PositionOf(s.leaderboardLocked(), s.roster.List(), participantID)
}

// rankEventsLocked recomputes the leaderboard and emits rankUpdated only to
// each participant whose own rank changed, on their personal channel. That
// bounds fan-out: no broadcast of everyone's rank to everyone.
func (s *Session) rankEventsLocked() []outgoing {
	lb := s.leaderboardLocked()
	participants := s.roster.List()
	graded := make(map[string]bool, len(participants))
	for _, p := range participants {
		graded[p.ID] = !p.LastSubmission.IsZero()
	}

	var events []outgoing
	for _, entry := range lb.Entries {
		if !graded[entry.ParticipantID] {
			continue
		}
		if s.lastRanks[entry.ParticipantID] == entry.Rank {
			continue
		}
		s.lastRanks[entry.ParticipantID] = entry.Rank
		evt, ok := s.event(domain.EventRankUpdated, domain.RankUpdate{
			ParticipantID: entry.ParticipantID,
			Rank:          entry.Rank,
			Total:         entry.Total,
		})
		if ok {
			events = append(events, outgoing{realtime.PersonalChannel(s.id, entry.ParticipantID), evt})
		}
	}
	return events
}

func (s *Session) snapshotEventLocked() []outgoing {
	evt, ok := s.event(domain.EventParticipantsSnapshot, s.roster.List())
	if !ok {
		return nil
	}
	return []outgoing{{realtime.SessionChannel(s.id), evt}}
}

func (s *Session) event(t domain.EventType, payload any) (domain.Event, bool) {
	evt, err := domain.NewEvent(t, s.id, payload)
	if err != nil {
		log.Printf("session %s: build %s event: %v", s.id, t, err)
		return domain.Event{}, false
	}
	return evt, true
}
