package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"dbkompare-functions/internal/domain"
	"dbkompare-functions/internal/infra/memory"
)

func TestQuizCacheCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(mr)
	log, _ := test.NewNullLogger()

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": sampleQuiz(),
		}),
	}
	cache := NewQuizCache(client, loader, time.Minute, log)

	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected quiz document in redis")
	}
	if ttl := mr.TTL("quiz:quiz-1"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("ttl outside jitter window: %v", ttl)
	}

	// The full document round-trips, including the answer key.
	q, err := cache.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if q.PassingPercentage != 50 || len(q.Questions) != 1 || q.Questions[0].CorrectOptionIDs()[0] != "o2" {
		t.Fatalf("unexpected cached quiz %+v", q)
	}
}

func TestQuizCacheInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	log, _ := test.NewNullLogger()
	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}),
	}
	cache := NewQuizCache(newClient(mr), loader, time.Minute, log)

	ctx := context.Background()
	_, _ = cache.GetQuiz(ctx, "quiz-1")
	if err := cache.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.GetQuiz(ctx, "quiz-1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload, loader calls=%d", loader.calls.Load())
	}
}

func TestQuizCacheFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(mr)
	mr.Close()

	log, hook := test.NewNullLogger()
	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}),
	}
	cache := NewQuizCache(client, loader, time.Minute, log)

	if _, err := cache.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("expected loader fallback, got %v", err)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("expected a warning to be logged")
	}

	if _, err := cache.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:                "quiz-1",
		Name:              "Arithmetic",
		PassingPercentage: 50,
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", IsCorrect: true},
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
