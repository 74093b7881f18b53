package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
	"dbkompare-functions/internal/infra/memory"
)

type recordingSink struct {
	saved  []string
	failOn string
}

func (s *recordingSink) SaveQuiz(_ context.Context, q domain.Quiz) error {
	if q.ID == s.failOn {
		return errors.New("connection reset")
	}
	s.saved = append(s.saved, q.ID)
	return nil
}

type failingInvalidator struct{}

func (failingInvalidator) Invalidate(context.Context, string) error { return errors.New("redis down") }

func TestQuizMirrorCopiesAndEvicts(t *testing.T) {
	e := newEnv(t)
	e.store.PutQuiz(twoQuestionQuiz("quiz-1", 50))
	e.store.PutQuiz(twoQuestionQuiz("quiz-2", 50))
	cache := memory.NewQuizCache(e.store, time.Hour)
	ctx := context.Background()

	if _, err := cache.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	// An edit in the primary store stays invisible until the mirror run evicts it.
	edited := twoQuestionQuiz("quiz-1", 50)
	edited.Name = "SQL Basics v2"
	e.store.PutQuiz(edited)

	sink := &recordingSink{}
	report, err := app.NewQuizMirror(e.store, sink, cache, e.log).Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Copied != 2 || report.Invalidated != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(sink.saved) != 2 || sink.saved[0] != "quiz-1" || sink.saved[1] != "quiz-2" {
		t.Fatalf("saved = %v", sink.saved)
	}
	q, err := cache.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get after sync: %v", err)
	}
	if q.Name != "SQL Basics v2" {
		t.Fatalf("cache still serves %q", q.Name)
	}
}

func TestQuizMirrorStopsOnWriteFailure(t *testing.T) {
	e := newEnv(t)
	e.store.PutQuiz(twoQuestionQuiz("quiz-1", 50))
	e.store.PutQuiz(twoQuestionQuiz("quiz-2", 50))
	sink := &recordingSink{failOn: "quiz-2"}

	report, err := app.NewQuizMirror(e.store, sink, nil, e.log).Sync(context.Background())
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if report.Copied != 1 {
		t.Fatalf("copied = %d, want 1", report.Copied)
	}
}

func TestQuizMirrorEvictionFailureIsLogged(t *testing.T) {
	e := newEnv(t)
	e.store.PutQuiz(twoQuestionQuiz("quiz-1", 50))

	report, err := app.NewQuizMirror(e.store, &recordingSink{}, failingInvalidator{}, e.log).Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Copied != 1 || report.Invalidated != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	var warned bool
	for _, entry := range e.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "quiz cache eviction failed" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected eviction warning")
	}
}
