package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quiz content and session metadata in Redis and falls
// back to a loader on cache miss. Layout per quiz:
//
//	SET  quiz:{id}:questions {questions as JSON}
//	HSET quiz:{id}:meta      name/status/pin/duration_minutes
//
// The full option list is cached, not just the correct one: grading has to
// tell a wrong answer apart from an option that does not exist.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.fromCache(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if quiz, ok := r.fromCache(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		raw, err := json.Marshal(quiz.Questions)
		if err != nil {
			// Cache fill is best-effort; the loaded quiz is still good.
			log.Printf("quiz %s: encode questions for cache: %v", quizID, err)
			return quiz, nil
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		pipe.Set(ctx, r.questionsKey(quizID), raw, ttl)
		pipe.HSet(ctx, r.metaKey(quizID),
			"name", quiz.Name,
			"status", string(quiz.Status),
			"pin", quiz.Pin,
			"duration_minutes", quiz.DurationMinutes,
		)
		if ttl > 0 {
			pipe.Expire(ctx, r.metaKey(quizID), ttl)
		}
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) fromCache(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.questionsKey(quizID)).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.Quiz{}, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return domain.Quiz{}, false
	}
	meta, _ := r.client.HGetAll(ctx, r.metaKey(quizID)).Result()

	quiz := domain.Quiz{
		ID:        quizID,
		Name:      meta["name"],
		Status:    domain.SessionStatus(meta["status"]),
		Pin:       meta["pin"],
		Questions: questions,
	}
	if minutes, err := strconv.Atoi(meta["duration_minutes"]); err == nil {
		quiz.DurationMinutes = minutes
	}
	return quiz, true
}

func (r *QuizRepository) questionsKey(quizID string) string { return "quiz:" + quizID + ":questions" }
func (r *QuizRepository) metaKey(quizID string) string      { return "quiz:" + quizID + ":meta" }

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
