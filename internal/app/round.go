package app

import (
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// RoundEngine drives one participant's retry rounds: the working set starts
// as every question in bank order and shrinks round over round to exactly
// the items answered incorrectly, with full wrong-answer history retained.
//
// A question id is in the current round's working set iff it has never been
// answered correctly in an earlier round. The engine only supplies round and
// attempt facts; turning them into a numeric score happens in scoreForRound.
type RoundEngine struct {
	order     []string // bank-provided question order, fixed
	questions map[string]domain.Question

	round     int
	working   map[string]struct{}
	attempted map[string]struct{} // attempts within the current round
	states    map[string]*domain.QuestionRoundState
	wrong     map[string]*domain.WrongHistory
	history   []domain.RoundTally
	tally     domain.RoundTally
	completed bool

	// maxRounds caps retry rounds when > 0. Unlimited by default: a question
	// answered incorrectly every round forever is legal.
	maxRounds int
}

// NewRoundEngine starts an attempt at round 1 over the full question set.
func NewRoundEngine(questions []domain.Question, maxRounds int) *RoundEngine {
	e := &RoundEngine{
		order:     make([]string, 0, len(questions)),
		questions: make(map[string]domain.Question, len(questions)),
		round:     1,
		working:   make(map[string]struct{}, len(questions)),
		attempted: make(map[string]struct{}),
		states:    make(map[string]*domain.QuestionRoundState, len(questions)),
		wrong:     make(map[string]*domain.WrongHistory),
		tally:     domain.RoundTally{Round: 1},
		maxRounds: maxRounds,
	}
	for _, q := range questions {
		e.order = append(e.order, q.ID)
		e.questions[q.ID] = q
		e.working[q.ID] = struct{}{}
		e.states[q.ID] = &domain.QuestionRoundState{}
	}
	if len(questions) == 0 {
		e.completed = true
	}
	return e
}

// RestoreRoundEngine rehydrates an attempt from a persisted snapshot.
// Questions already resolved (absent from the snapshot's remaining set) are
// marked correct so the shrinkage invariant keeps holding on resume.
func RestoreRoundEngine(questions []domain.Question, snap domain.AttemptSnapshot, maxRounds int) *RoundEngine {
	e := NewRoundEngine(questions, maxRounds)
	if snap.Round > 1 {
		e.round = snap.Round
		e.tally = domain.RoundTally{Round: snap.Round}
	}
	remaining := make(map[string]struct{}, len(snap.Remaining))
	for _, qid := range snap.Remaining {
		remaining[qid] = struct{}{}
	}
	for _, qid := range e.order {
		if _, open := remaining[qid]; open {
			continue
		}
		delete(e.working, qid)
		e.states[qid].Attempted = true
		e.states[qid].Correct = true
		if e.states[qid].RoundAnswered == 0 {
			e.states[qid].RoundAnswered = 1
		}
	}
	if len(e.working) == 0 {
		e.completed = true
	}
	return e
}

// Submit grades one answer. It returns whether the answer was correct and
// whether this submission completed the attempt.
func (e *RoundEngine) Submit(questionID, answerID string) (correct, completed bool, err error) {
	if e.completed {
		return false, false, domain.ErrSessionClosed
	}
	if _, live := e.working[questionID]; !live {
		return false, false, domain.ErrInvalidQuestion
	}
	if _, done := e.attempted[questionID]; done {
		// Already attempted this round; re-asking waits for the next round.
		return false, false, domain.ErrInvalidQuestion
	}

	question := e.questions[questionID]
	var selected *domain.Option
	for i := range question.Options {
		if question.Options[i].ID == answerID {
			selected = &question.Options[i]
			break
		}
	}
	if selected == nil {
		return false, false, domain.ErrOptionNotFound
	}

	e.attempted[questionID] = struct{}{}
	e.tally.Attempted++

	state := e.states[questionID]
	state.Attempted = true
	if selected.Correct {
		state.Correct = true
		state.RoundAnswered = e.round
		e.tally.Correct++
		correct = true
	} else {
		hist, ok := e.wrong[questionID]
		if !ok {
			hist = &domain.WrongHistory{WrongAnswerIDs: make(map[string]struct{})}
			e.wrong[questionID] = hist
		}
		hist.WrongAnswerIDs[answerID] = struct{}{}
		hist.LastWrongRound = e.round
		e.tally.Incorrect++
	}

	if len(e.attempted) == len(e.working) {
		e.closeRound()
	}
	return correct, e.completed, nil
}

// closeRound pushes the tally onto the history and either advances to the
// next round over the still-incorrect set or completes the attempt.
func (e *RoundEngine) closeRound() {
	e.history = append(e.history, e.tally)

	next := make(map[string]struct{})
	for qid := range e.working {
		if !e.states[qid].Correct {
			next[qid] = struct{}{}
		}
	}
	if len(next) == 0 {
		e.completed = true
		return
	}
	if e.maxRounds > 0 && e.round >= e.maxRounds {
		// Ceiling reached; remaining questions stay unresolved.
		e.completed = true
		return
	}
	e.round++
	e.working = next
	e.attempted = make(map[string]struct{})
	e.tally = domain.RoundTally{Round: e.round}
}

// ForceComplete ends the attempt as-is, closing the in-flight round so its
// partial tally is not lost. Safe to call more than once.
func (e *RoundEngine) ForceComplete() {
	if e.completed {
		return
	}
	if e.tally.Attempted > 0 {
		e.history = append(e.history, e.tally)
	}
	e.completed = true
}

// Round returns the 1-based current round.
func (e *RoundEngine) Round() int { return e.round }

// Completed reports whether the attempt is over.
func (e *RoundEngine) Completed() bool { return e.completed }

// Working returns the current working set in bank order.
func (e *RoundEngine) Working() []string {
	out := make([]string, 0, len(e.working))
	for _, qid := range e.order {
		if _, live := e.working[qid]; live {
			out = append(out, qid)
		}
	}
	return out
}

// CurrentQuestionID returns the first unattempted question of this round in
// bank order, or "" when the attempt is complete.
func (e *RoundEngine) CurrentQuestionID() string {
	if e.completed {
		return ""
	}
	for _, qid := range e.order {
		if _, live := e.working[qid]; !live {
			continue
		}
		if _, done := e.attempted[qid]; !done {
			return qid
		}
	}
	return ""
}

// Progress is the fraction of questions resolved correctly.
func (e *RoundEngine) Progress() float64 {
	if len(e.order) == 0 {
		return 1
	}
	resolved := 0
	for _, state := range e.states {
		if state.Correct {
			resolved++
		}
	}
	return float64(resolved) / float64(len(e.order))
}

// History returns the closed-round tallies in order.
func (e *RoundEngine) History() []domain.RoundTally {
	out := make([]domain.RoundTally, len(e.history))
	copy(out, e.history)
	return out
}

// WrongHistory returns the accumulated wrong answers for a question, or
// false when it was never missed.
func (e *RoundEngine) WrongHistory(questionID string) (domain.WrongHistory, bool) {
	hist, ok := e.wrong[questionID]
	if !ok {
		return domain.WrongHistory{}, false
	}
	ids := make(map[string]struct{}, len(hist.WrongAnswerIDs))
	for id := range hist.WrongAnswerIDs {
		ids[id] = struct{}{}
	}
	return domain.WrongHistory{WrongAnswerIDs: ids, LastWrongRound: hist.LastWrongRound}, true
}

// Snapshot captures the resume state persisted at the service boundary.
func (e *RoundEngine) Snapshot(participantID string, score int) domain.AttemptSnapshot {
	return domain.AttemptSnapshot{
		ParticipantID:     participantID,
		Round:             e.round,
		Score:             score,
		Progress:          e.Progress(),
		CurrentQuestionID: e.CurrentQuestionID(),
		Remaining:         e.Working(),
	}
}

// scoreForRound converts a correct answer into points: the question's value
// minus one per extra round needed, never below one. Questions with no
// configured value are worth 3.
func scoreForRound(points, round int) int {
	if points == 0 {
		points = 3
	}
	awarded := points - (round - 1)
	if awarded < 1 {
		awarded = 1
	}
	return awarded
}
