package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// QuizLoader loads quiz rows from Postgres: lifecycle metadata in columns,
// question content as JSONB. A malformed questions payload is a
// deserialization error, not something to branch around at runtime.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		name, status, pin string
		durationMinutes   int
		raw               []byte
	)
	err := l.pool.QueryRow(ctx,
		`SELECT name, status, pin, duration_minutes, questions FROM quizzes WHERE id=$1`,
		quizID,
	).Scan(&name, &status, &pin, &durationMinutes, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz questions: %w", err)
	}
	return domain.Quiz{
		ID:              quizID,
		Name:            name,
		Status:          domain.SessionStatus(status),
		Pin:             pin,
		DurationMinutes: durationMinutes,
		Questions:       questions,
	}, nil
}
