package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session has not been initialized.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotJoinable is returned for joins outside the waiting room
	// that are not resuming an existing attempt.
	ErrSessionNotJoinable = errors.New("session not joinable")
	// ErrSessionClosed rejects mutation after the session finished.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidQuestion is returned for answers outside the current working
	// set; it signals a client/state desync and the client must reconcile.
	ErrInvalidQuestion = errors.New("question not in current round")
	// ErrRankUnavailable is returned when a participant has no graded score yet.
	ErrRankUnavailable = errors.New("rank unavailable")
	// ErrInvalidPin rejects joins with a wrong join code.
	ErrInvalidPin = errors.New("invalid session pin")
	// ErrNotTeacher rejects lifecycle transitions from non-teacher roles.
	ErrNotTeacher = errors.New("operation restricted to the session teacher")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrOptionNotFound indicates a submitted answer ID is invalid.
	ErrOptionNotFound = errors.New("answer option not found")
)
