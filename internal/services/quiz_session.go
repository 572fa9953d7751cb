package services

import (
	"time"

	"github.com/google/uuid"

	"studykit-backend/internal/models"
)

// QuizEngine owns the answer/scoring rules of a quiz session. It holds no
// session state; callers must serialize mutations of one session.
type QuizEngine struct {
	now func() time.Time
}

func NewQuizEngine(now func() time.Time) *QuizEngine {
	if now == nil {
		now = time.Now
	}
	return &QuizEngine{now: now}
}

// Create starts a session over a fixed question set.
func (e *QuizEngine) Create(questions []models.QuizQuestion) *models.QuizSession {
	if questions == nil {
		questions = []models.QuizQuestion{}
	}
	return &models.QuizSession{
		Questions:      questions,
		UserAnswers:    []models.UserAnswer{},
		Score:          0,
		TotalQuestions: len(questions),
	}
}

// SubmitAnswer records selected for question index. A second answer for the
// same index replaces the first, and the score is recounted from the
// surviving records. Out-of-range indices leave the session untouched.
func (e *QuizEngine) SubmitAnswer(session *models.QuizSession, index int, selected string) error {
	if index < 0 || index >= session.TotalQuestions || index >= len(session.Questions) {
		return &InvalidIndexError{Index: index, Total: session.TotalQuestions}
	}

	answer := models.UserAnswer{
		QuestionIndex:  index,
		SelectedAnswer: selected,
		IsCorrect:      selected == session.Questions[index].CorrectAnswer,
		AnsweredAt:     e.now(),
	}

	replaced := false
	for i := range session.UserAnswers {
		if session.UserAnswers[i].QuestionIndex == index {
			session.UserAnswers[i] = answer
			replaced = true
			break
		}
	}
	if !replaced {
		session.UserAnswers = append(session.UserAnswers, answer)
	}

	session.Score = 0
	for _, a := range session.UserAnswers {
		if a.IsCorrect {
			session.Score++
		}
	}

	e.IsComplete(session)
	return nil
}

// IsComplete reports whether every question has an answer, stamping
// CompletedAt the first time it does. A quiz with no questions is trivially
// complete.
func (e *QuizEngine) IsComplete(session *models.QuizSession) bool {
	answered := make(map[int]bool, session.TotalQuestions)
	for _, a := range session.UserAnswers {
		if a.QuestionIndex >= 0 && a.QuestionIndex < session.TotalQuestions {
			answered[a.QuestionIndex] = true
		}
	}
	if len(answered) < session.TotalQuestions {
		return false
	}

	if session.CompletedAt == nil {
		now := e.now()
		session.CompletedAt = &now
	}
	return true
}

// Results summarizes a session for display, with the latest answer per
// question.
func (e *QuizEngine) Results(quizID uuid.UUID, session *models.QuizSession) *models.QuizResults {
	latest := make(map[int]models.UserAnswer, len(session.UserAnswers))
	for _, a := range session.UserAnswers {
		latest[a.QuestionIndex] = a
	}

	results := &models.QuizResults{
		QuizID:         quizID,
		Score:          session.Score,
		TotalQuestions: session.TotalQuestions,
		CompletedAt:    session.CompletedAt,
		Questions:      make([]models.QuestionResult, len(session.Questions)),
	}
	if session.TotalQuestions > 0 {
		results.Percentage = float64(session.Score) / float64(session.TotalQuestions) * 100
	}

	for i, q := range session.Questions {
		r := models.QuestionResult{
			QuestionIndex: i,
			Question:      q.Question,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
		}
		if a, ok := latest[i]; ok {
			selected := a.SelectedAnswer
			r.SelectedAnswer = &selected
			r.IsCorrect = a.IsCorrect
		}
		results.Questions[i] = r
	}

	return results
}
