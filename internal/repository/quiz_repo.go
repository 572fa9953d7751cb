package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studykit-backend/internal/models"
)

type QuizRepo struct {
	pool *pgxpool.Pool
}

func NewQuizRepo(pool *pgxpool.Pool) *QuizRepo {
	return &QuizRepo{pool: pool}
}

func (r *QuizRepo) Create(ctx context.Context, q *models.Quiz) error {
	q.ID = uuid.New()
	if q.Questions == nil {
		q.Questions = []models.QuizQuestion{}
	}
	if q.UserAnswers == nil {
		q.UserAnswers = []models.UserAnswer{}
	}
	questionsBytes, _ := json.Marshal(q.Questions)
	answersBytes, _ := json.Marshal(q.UserAnswers)

	query := `INSERT INTO quizzes (id, user_id, document_id, title, requested_count, questions_json, answers_json, total_questions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		q.ID, q.UserID, q.DocumentID, q.Title, q.Requested, questionsBytes, answersBytes, q.TotalQuestions,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
}

const quizColumns = `id, user_id, document_id, title, requested_count, questions_json, answers_json,
	score, total_questions, completed_at, created_at, updated_at`

func scanQuiz(row pgx.Row) (*models.Quiz, error) {
	q := &models.Quiz{}
	var questionsBytes, answersBytes []byte
	err := row.Scan(
		&q.ID, &q.UserID, &q.DocumentID, &q.Title, &q.Requested, &questionsBytes, &answersBytes,
		&q.Score, &q.TotalQuestions, &q.CompletedAt, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questionsBytes, &q.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode quiz questions: %w", err)
	}
	if err := json.Unmarshal(answersBytes, &q.UserAnswers); err != nil {
		return nil, fmt.Errorf("failed to decode quiz answers: %w", err)
	}
	return q, nil
}

func (r *QuizRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	return scanQuiz(r.pool.QueryRow(ctx, "SELECT "+quizColumns+" FROM quizzes WHERE id = $1", id))
}

func (r *QuizRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+quizColumns+" FROM quizzes WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quizzes := []*models.Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// SaveSession writes the question set and answer state of a quiz.
func (r *QuizRepo) SaveSession(ctx context.Context, id uuid.UUID, s *models.QuizSession) error {
	questionsBytes, err := json.Marshal(s.Questions)
	if err != nil {
		return err
	}
	answersBytes, err := json.Marshal(s.UserAnswers)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE quizzes SET questions_json = $1, answers_json = $2, score = $3, total_questions = $4,
		 completed_at = $5, updated_at = NOW() WHERE id = $6`,
		questionsBytes, answersBytes, s.Score, s.TotalQuestions, s.CompletedAt, id,
	)
	return err
}
