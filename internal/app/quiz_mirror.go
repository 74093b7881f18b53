package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/domain"
)

// QuizSource lists every quiz in the primary store.
type QuizSource interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// QuizSink receives mirrored quizzes.
type QuizSink interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// QuizInvalidator drops a cached quiz so the next read sees the mirrored copy.
type QuizInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

// MirrorReport summarizes one sync run.
type MirrorReport struct {
	Copied      int `json:"copied"`
	Invalidated int `json:"invalidated"`
}

// QuizMirror copies quizzes from the primary store into the Postgres mirror and
// evicts them from the quiz cache.
type QuizMirror struct {
	source QuizSource
	sink   QuizSink
	cache  QuizInvalidator
	log    logrus.FieldLogger
}

// NewQuizMirror builds a mirror. cache may be nil.
func NewQuizMirror(source QuizSource, sink QuizSink, cache QuizInvalidator, log logrus.FieldLogger) *QuizMirror {
	return &QuizMirror{source: source, sink: sink, cache: cache, log: log}
}

// Sync copies every quiz. The first failed write stops the run; cache eviction
// failures are logged and the run continues, since entries expire on their own.
func (m *QuizMirror) Sync(ctx context.Context) (MirrorReport, error) {
	quizzes, err := m.source.ListQuizzes(ctx)
	if err != nil {
		return MirrorReport{}, storeError(err, "Failed to list quizzes")
	}

	var report MirrorReport
	for _, q := range quizzes {
		if q.ID == "" {
			continue
		}
		if err := m.sink.SaveQuiz(ctx, q); err != nil {
			return report, domain.Upstream(err, "Failed to mirror quiz %s", q.ID)
		}
		report.Copied++

		if m.cache == nil {
			continue
		}
		if err := m.cache.Invalidate(ctx, q.ID); err != nil {
			m.log.WithError(err).WithField("quizId", q.ID).Warn("quiz cache eviction failed")
			continue
		}
		report.Invalidated++
	}
	m.log.WithFields(logrus.Fields{
		"copied":      report.Copied,
		"invalidated": report.Invalidated,
	}).Info("quiz mirror synced")
	return report, nil
}
