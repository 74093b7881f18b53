package app

import (
	"math"

	"dbkompare-functions/internal/domain"
)

// Score is the outcome of grading a set of answers against a quiz.
type Score struct {
	CorrectCount int
	TotalScore   int
}

// ScoreAnswers grades answers against quiz. Questions without an answer and answers
// to unknown questions score nothing. A single-answer question is correct when
// exactly one option is selected and it is flagged correct; a multi-answer question
// is correct when the selection equals the correct set.
func ScoreAnswers(quiz domain.Quiz, answers []domain.Answer) Score {
	byQuestion := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		if _, ok := byQuestion[a.QuestionID]; !ok {
			byQuestion[a.QuestionID] = a
		}
	}

	var score Score
	for _, q := range quiz.Questions {
		answer, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		if answeredCorrectly(q, answer.SelectedOptionIDs) {
			score.CorrectCount++
			score.TotalScore += q.PointValue()
		}
	}
	return score
}

func answeredCorrectly(q domain.Question, selected []string) bool {
	correct := make(map[string]struct{})
	for _, id := range q.CorrectOptionIDs() {
		correct[id] = struct{}{}
	}

	if !q.MultipleAnswer() {
		if len(selected) != 1 {
			return false
		}
		_, ok := correct[selected[0]]
		return ok
	}

	chosen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := correct[id]; !ok {
			return false
		}
		chosen[id] = struct{}{}
	}
	return len(chosen) == len(correct)
}

// PercentageScore is correctCount over the quiz's desired question count (or its
// question count when unset) as a percentage. An empty quiz scores 0.
func PercentageScore(quiz domain.Quiz, correctCount int) float64 {
	denominator := quiz.DesiredQuestions
	if denominator <= 0 {
		denominator = len(quiz.Questions)
	}
	if denominator == 0 {
		return 0
	}
	return float64(correctCount) / float64(denominator) * 100
}

// Passed reports whether percentage meets the quiz's passing threshold.
func Passed(quiz domain.Quiz, percentage float64) bool {
	return percentage >= quiz.PassingPercentage
}

func roundPercent(p float64) int {
	return int(math.Round(p))
}
