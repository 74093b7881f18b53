package dynamo

import (
	"context"
	"sort"

	"dbkompare-functions/internal/domain"
)

// LoadQuiz reads a quiz with its embedded questions; it also backs the quiz caches.
func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var q domain.Quiz
	ok, err := s.getItem(ctx, s.tables.Quizzes, idKey(quizID), &q)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !ok {
		return domain.Quiz{}, domain.NotFound("Quiz not found")
	}
	return q, nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.LoadQuiz(ctx, quizID)
}

// ListQuizzes scans the quizzes table; used to fill the Postgres mirror.
func (s *Store) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	items, err := s.scan(ctx, s.tables.Quizzes, nil)
	if err != nil {
		return nil, err
	}
	quizzes, err := unmarshalItems[domain.Quiz](items)
	if err != nil {
		return nil, err
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].ID < quizzes[j].ID })
	return quizzes, nil
}
