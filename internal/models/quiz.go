package models

import (
	"time"

	"github.com/google/uuid"
)

type QuizQuestion struct {
	Question      string     `json:"question"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Explanation   string     `json:"explanation"`
	Difficulty    Difficulty `json:"difficulty"`
}

type UserAnswer struct {
	QuestionIndex  int       `json:"question_index"`
	SelectedAnswer string    `json:"selected_answer"`
	IsCorrect      bool      `json:"is_correct"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// QuizSession tracks one user's run through a fixed question set.
type QuizSession struct {
	Questions      []QuizQuestion `json:"questions"`
	UserAnswers    []UserAnswer   `json:"user_answers"`
	Score          int            `json:"score"`
	TotalQuestions int            `json:"total_questions"`
	CompletedAt    *time.Time     `json:"completed_at"`
}

type Quiz struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	Requested  int       `json:"requested_count"`
	QuizSession
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GenerateQuizRequest struct {
	Title        string `json:"title"`
	NumQuestions int    `json:"num_questions"`
}

type SubmitAnswerRequest struct {
	QuestionIndex  *int   `json:"question_index"`
	SelectedAnswer string `json:"selected_answer"`
}

type QuestionResult struct {
	QuestionIndex  int     `json:"question_index"`
	Question       string  `json:"question"`
	SelectedAnswer *string `json:"selected_answer"`
	CorrectAnswer  string  `json:"correct_answer"`
	IsCorrect      bool    `json:"is_correct"`
	Explanation    string  `json:"explanation"`
}

type QuizResults struct {
	QuizID         uuid.UUID        `json:"quiz_id"`
	Score          int              `json:"score"`
	TotalQuestions int              `json:"total_questions"`
	Percentage     float64          `json:"percentage"`
	CompletedAt    *time.Time       `json:"completed_at"`
	Questions      []QuestionResult `json:"questions"`
}
