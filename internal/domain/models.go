package domain

import "time"

// SessionStatus is the lifecycle phase of a quiz session.
type SessionStatus string

const (
	StatusPending  SessionStatus = "pending"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// IsPending reports whether the session is still in the waiting room.
func (s SessionStatus) IsPending() bool { return s == StatusPending }

// IsActive reports whether questions are being served.
func (s SessionStatus) IsActive() bool { return s == StatusActive }

// IsFinished reports whether the session is terminal.
func (s SessionStatus) IsFinished() bool { return s == StatusFinished }

// Role distinguishes the session owner from competitors.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Participant is a member of a session, in the waiting room or live.
type Participant struct {
	ID                string  `json:"id"`
	DisplayName       string  `json:"displayName"`
	Role              Role    `json:"role"`
	Connected         bool    `json:"connected"`
	Score             int     `json:"score"`
	Progress          float64 `json:"progress"`
	CurrentQuestionID string  `json:"currentQuestionId"`
	// Seq is a monotonic per-session sequence number; registry updates
	// carrying a lower Seq than the stored one are stale and dropped.
	Seq            uint64    `json:"seq"`
	LastUpdated    time.Time `json:"lastUpdated"`
	LastSubmission time.Time `json:"lastSubmission"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Options    []Option `json:"options"`
	Points     int      `json:"points"` // defaults to 3 if zero
	Topic      string   `json:"topic,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
}

// CorrectOption returns the correct option id, or "" when none is flagged.
func (q Question) CorrectOption() string {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	return ""
}

// Quiz is the stored content and metadata for one session.
type Quiz struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	SubjectID       string        `json:"subjectId,omitempty"`
	Status          SessionStatus `json:"status"`
	Pin             string        `json:"pin,omitempty"`
	DurationMinutes int           `json:"durationMinutes"`
	Questions       []Question    `json:"questions"`
}

// Duration converts the stored minutes into the countdown duration.
func (q Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID string
	AnswerID   string
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
	Round      int    `json:"round"`
	Completed  bool   `json:"completed"`
}

// QuestionRoundState records how one question fared across rounds.
type QuestionRoundState struct {
	Attempted     bool `json:"attempted"`
	Correct       bool `json:"correct"`
	RoundAnswered int  `json:"roundAnswered"` // round in which it was resolved, 0 while open
}

// WrongHistory accumulates every incorrect option chosen for a question.
type WrongHistory struct {
	WrongAnswerIDs map[string]struct{} `json:"wrongAnswerIds"`
	LastWrongRound int                 `json:"lastWrongRound"`
}

// RoundTally is the per-round attempt bookkeeping kept for analytics.
type RoundTally struct {
	Round     int `json:"round"`
	Attempted int `json:"attempted"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

// AttemptSnapshot is the persisted resume state for one participant.
// It carries enough to rehydrate a round engine after a reconnect.
type AttemptSnapshot struct {
	ParticipantID     string   `json:"participantId"`
	Round             int      `json:"round"`
	Score             int      `json:"score"`
	Progress          float64  `json:"progress"`
	CurrentQuestionID string   `json:"currentQuestionId"`
	Remaining         []string `json:"remaining"` // working set, bank order
}

// LeaderboardEntry is a ranked view of a participant.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
	Total         int    `json:"total"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// RankUpdate is pushed to a single participant when their rank changes.
type RankUpdate struct {
	ParticipantID string `json:"participantId"`
	Rank          int    `json:"rank"`
	Total         int    `json:"total"`
}
