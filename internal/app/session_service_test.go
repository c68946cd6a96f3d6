package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/app"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/infra/memory"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/realtime"
)

func testQuiz(status domain.SessionStatus) domain.Quiz {
	return domain.Quiz{
		ID:              "session-1",
		Name:            "Test session",
		Status:          status,
		Pin:             "9999",
		DurationMinutes: 10,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "one", Options: []domain.Option{
				{ID: "a1", Text: "right", Correct: true},
				{ID: "a2", Text: "wrong", Correct: false},
			}, Points: 3},
			{ID: "q2", Prompt: "two", Options: []domain.Option{
				{ID: "a1", Text: "wrong", Correct: false},
				{ID: "a2", Text: "right", Correct: true},
			}, Points: 3},
		},
	}
}

func newTestService(status domain.SessionStatus) (*app.SessionService, *realtime.MemoryBroker, *memory.AttemptStore) {
	broker := realtime.NewMemoryBroker()
	attempts := memory.NewAttemptStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"session-1": testQuiz(status),
	}), 5*time.Minute)
	service := app.NewSessionService(memory.NewSessionStore(), quizzes, attempts, broker, 0, 0)
	return service, broker, attempts
}

func joinAll(t *testing.T, service *app.SessionService) {
	t.Helper()
	ctx := context.Background()
	if _, err := service.Join(ctx, "session-1", "t1", "Teach", domain.RoleTeacher, ""); err != nil {
		t.Fatalf("teacher join: %v", err)
	}
	if _, err := service.Join(ctx, "session-1", "u1", "Ann", domain.RoleStudent, "9999"); err != nil {
		t.Fatalf("join u1: %v", err)
	}
	if _, err := service.Join(ctx, "session-1", "u2", "Bea", domain.RoleStudent, "9999"); err != nil {
		t.Fatalf("join u2: %v", err)
	}
}

func drain(ch <-chan domain.Event) []domain.Event {
	var out []domain.Event
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func eventTypes(events []domain.Event) map[domain.EventType]int {
	counts := make(map[domain.EventType]int)
	for _, evt := range events {
		counts[evt.Type]++
	}
	return counts
}

func TestJoinRequiresPin(t *testing.T) {
	service, _, _ := newTestService(domain.StatusPending)
	ctx := context.Background()

	if _, err := service.Join(ctx, "session-1", "u1", "Ann", domain.RoleStudent, "0000"); err != domain.ErrInvalidPin {
		t.Fatalf("expected ErrInvalidPin, got %v", err)
	}
	// The teacher does not need the pin of their own session.
	if _, err := service.Join(ctx, "session-1", "t1", "Teach", domain.RoleTeacher, ""); err != nil {
		t.Fatalf("teacher join: %v", err)
	}
}

func TestJoinUnknownQuiz(t *testing.T) {
	service, _, _ := newTestService(domain.StatusPending)
	if _, err := service.Join(context.Background(), "nope", "u1", "Ann", domain.RoleStudent, ""); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestStartLifecycle(t *testing.T) {
	service, broker, _ := newTestService(domain.StatusPending)
	ctx := context.Background()
	joinAll(t, service)

	sessionCh, cancel, err := broker.Subscribe(ctx, realtime.SessionChannel("session-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Students cannot start the session.
	if _, err := service.Start(ctx, "session-1", "u1"); err != domain.ErrNotTeacher {
		t.Fatalf("expected ErrNotTeacher, got %v", err)
	}
	// Submitting before the session is active is a closed-session error.
	if _, err := service.SubmitAnswer(ctx, "session-1", "u1", domain.AnswerSubmission{QuestionID: "q1", AnswerID: "a1"}); err != domain.ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed before start, got %v", err)
	}

	state, err := service.Start(ctx, "session-1", "t1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !state.Status.IsActive() {
		t.Fatalf("expected active session, got %s", state.Status)
	}
	if state.Deadline.IsZero() || state.RemainingSec <= 0 {
		t.Fatalf("expected a server-issued deadline, got %+v", state)
	}

	counts := eventTypes(drain(sessionCh))
	if counts[domain.EventSessionStarted] != 1 {
		t.Fatalf("expected one sessionStarted event, got %v", counts)
	}

	// Starting twice is a no-op returning the current state.
	again, err := service.Start(ctx, "session-1", "t1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !again.Status.IsActive() {
		t.Fatalf("expected active state on repeated start, got %s", again.Status)
	}
	if counts := eventTypes(drain(sessionCh)); counts[domain.EventSessionStarted] != 0 {
		t.Fatalf("repeated start must not rebroadcast, got %v", counts)
	}

	// New students cannot join the live session without prior progress.
	if _, err := service.Join(ctx, "session-1", "u9", "Late", domain.RoleStudent, "9999"); err != domain.ErrSessionNotJoinable {
		t.Fatalf("expected ErrSessionNotJoinable, got %v", err)
	}
}

func TestAnswerFlowAndRankPush(t *testing.T) {
	service, broker, _ := newTestService(domain.StatusPending)
	ctx := context.Background()
	joinAll(t, service)

	if _, err := service.Start(ctx, "session-1", "t1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	u2Ch, cancelU2, err := broker.Subscribe(ctx, realtime.PersonalChannel("session-1", "u2"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelU2()
	u1Ch, cancelU1, err := broker.Subscribe(ctx, realtime.PersonalChannel("session-1", "u1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelU1()

	result, err := service.SubmitAnswer(ctx, "session-1", "u2", domain.AnswerSubmission{QuestionID: "q1", AnswerID: "a1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.Awarded != 3 || result.TotalScore != 3 || result.Round != 1 {
		t.Fatalf("unexpected answer result %+v", result)
	}

	u2Events := drain(u2Ch)
	if counts := eventTypes(u2Events); counts[domain.EventRankUpdated] != 1 {
		t.Fatalf("expected one rankUpdated for u2, got %v", counts)
	}
	var rank domain.RankUpdate
	if err := u2Events[0].DecodePayload(&rank); err != nil {
		t.Fatalf("decode rank: %v", err)
	}
	if rank.ParticipantID != "u2" || rank.Rank != 1 || rank.Total != 2 {
		t.Fatalf("unexpected rank payload %+v", rank)
	}
	// u1 has no graded score yet; their channel stays quiet.
	if got := drain(u1Ch); len(got) != 0 {
		t.Fatalf("expected no rank push for ungraded u1, got %v", got)
	}

	if _, _, err := service.RankOf(ctx, "session-1", "u1"); err != domain.ErrRankUnavailable {
		t.Fatalf("expected ErrRankUnavailable for u1, got %v", err)
	}
	rank2, total, err := service.RankOf(ctx, "session-1", "u2")
	if err != nil {
		t.Fatalf("rankOf u2: %v", err)
	}
	if rank2 != 1 || total != 2 {
		t.Fatalf("expected rank 1 of 2, got %d of %d", rank2, total)
	}

	// Answering a question outside the working set is a desync.
	if _, err := service.SubmitAnswer(ctx, "session-1", "u2", domain.AnswerSubmission{QuestionID: "q1", AnswerID: "a1"}); err != domain.ErrInvalidQuestion {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}
}

func TestCompletionFinishesSession(t *testing.T) {
	service, broker, _ := newTestService(domain.StatusPending)
	ctx := context.Background()
	if _, err := service.Join(ctx, "session-1", "t1", "Teach", domain.RoleTeacher, ""); err != nil {
		t.Fatalf("teacher join: %v", err)
	}
	if _, err := service.Join(ctx, "session-1", "u1", "Ann", domain.RoleStudent, "9999"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Start(ctx, "session-1", "t1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	sessionCh, cancel, err := broker.Subscribe(ctx, realtime.SessionChannel("session-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := service.SubmitAnswer(ctx, "session-1", "u1", domain.AnswerSubmission{QuestionID: "q1", AnswerID: "a1"}); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	result, err := service.SubmitAnswer(ctx, "session-1", "u1", domain.AnswerSubmission{QuestionID: "q2", AnswerID: "a2"})
	if err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if !result.Completed {
		t.Fatalf("expected completed attempt, got %+v", result)
	}

	counts := eventTypes(drain(sessionCh))
	if counts[domain.EventParticipantCompleted] != 1 {
		t.Fatalf("expected participantCompleted, got %v", counts)
	}
	if counts[domain.EventSessionFinished] != 1 {
		t.Fatalf("expected sessionFinished once all attempts are done, got %v", counts)
	}

	if _, err := service.SubmitAnswer(ctx, "session-1", "u1", domain.AnswerSubmission{QuestionID: "q1", AnswerID: "a1"}); err != domain.ErrSessionClosed {
		t.Fatalf("expected ErrSessionClosed after finish, got %v", err)
	}
}

func TestResumeFromAttemptStore(t *testing.T) {
	service, _, attempts := newTestService(domain.StatusActive)
	ctx := context.Background()

	// Without persisted progress, the live session is closed to newcomers.
	if _, err := service.Join(ctx, "session-1", "u1", "Ann", domain.RoleStudent, "9999"); err != domain.ErrSessionNotJoinable {
		t.Fatalf("expected ErrSessionNotJoinable, got %v", err)
	}

	if err := attempts.SaveAttempt(ctx, "session-1", domain.AttemptSnapshot{
		ParticipantID:     "u1",
		Round:             2,
		Score:             3,
		Progress:          0.5,
		CurrentQuestionID: "q2",
		Remaining:         []string{"q2"},
	}); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	joined, err := service.Join(ctx, "session-1", "u1", "Ann", domain.RoleStudent, "9999")
	if err != nil {
		t.Fatalf("resume join: %v", err)
	}
	if joined.Resume == nil {
		t.Fatalf("expected resume state for a participant with progress")
	}
	if joined.Resume.Round != 2 || len(joined.Resume.Remaining) != 1 || joined.Resume.Remaining[0] != "q2" {
		t.Fatalf("unexpected resume snapshot %+v", joined.Resume)
	}
	if joined.Participant.Score != 3 {
		t.Fatalf("expected restored score 3, got %d", joined.Participant.Score)
	}

	result, err := service.SubmitAnswer(ctx, "session-1", "u1", domain.AnswerSubmission{QuestionID: "q2", AnswerID: "a2"})
	if err != nil {
		t.Fatalf("submit after resume: %v", err)
	}
	if !result.Completed {
		t.Fatalf("resolving the restored working set should complete the attempt, got %+v", result)
	}
}

func TestTimeUpIsIdempotent(t *testing.T) {
	service, broker, _ := newTestService(domain.StatusPending)
	ctx := context.Background()
	if _, err := service.Join(ctx, "session-1", "t1", "Teach", domain.RoleTeacher, ""); err != nil {
		t.Fatalf("teacher join: %v", err)
	}
	if _, err := service.Join(ctx, "session-1", "u1", "Ann", domain.RoleStudent, "9999"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Start(ctx, "session-1", "t1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	sessionCh, cancel, err := broker.Subscribe(ctx, realtime.SessionChannel("session-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := service.SubmitAnswer(ctx, "session-1", "u1", domain.AnswerSubmission{QuestionID: "q1", AnswerID: "a2"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	service.TimeUp(ctx, "session-1", "u1")
	service.TimeUp(ctx, "session-1", "u1")

	counts := eventTypes(drain(sessionCh))
	if counts[domain.EventParticipantCompleted] != 1 {
		t.Fatalf("double time-up must complete exactly once, got %v", counts)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	service, _, _ := newTestService(domain.StatusPending)
	ctx := context.Background()
	joinAll(t, service)

	service.Leave(ctx, "session-1", "u1")
	service.Leave(ctx, "session-1", "u1")

	state, err := service.State(ctx, "session-1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Participants) != 2 {
		t.Fatalf("expected 2 remaining participants, got %d", len(state.Participants))
	}
	// A student leaving never ends the session.
	if !state.Status.IsPending() {
		t.Fatalf("expected session still pending, got %s", state.Status)
	}
}

func TestTeacherOverrideFinish(t *testing.T) {
	service, broker, _ := newTestService(domain.StatusPending)
	ctx := context.Background()
	joinAll(t, service)
	if _, err := service.Start(ctx, "session-1", "t1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	sessionCh, cancel, err := broker.Subscribe(ctx, realtime.SessionChannel("session-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := service.Finish(ctx, "session-1", "u1"); err != domain.ErrNotTeacher {
		t.Fatalf("expected ErrNotTeacher, got %v", err)
	}
	state, err := service.Finish(ctx, "session-1", "t1")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !state.Status.IsFinished() {
		t.Fatalf("expected finished, got %s", state.Status)
	}
	if counts := eventTypes(drain(sessionCh)); counts[domain.EventSessionFinished] != 1 {
		t.Fatalf("expected sessionFinished, got %v", counts)
	}

	// Finishing again is a no-op, and joining is rejected.
	if _, err := service.Finish(ctx, "session-1", "t1"); err != nil {
		t.Fatalf("repeated finish: %v", err)
	}
	if _, err := service.Join(ctx, "session-1", "u9", "Late", domain.RoleStudent, "9999"); err != domain.ErrSessionNotJoinable {
		t.Fatalf("expected ErrSessionNotJoinable after finish, got %v", err)
	}
}
