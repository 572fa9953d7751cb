package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studykit-backend/internal/models"
)

type SummaryRepo struct {
	pool *pgxpool.Pool
}

func NewSummaryRepo(pool *pgxpool.Pool) *SummaryRepo {
	return &SummaryRepo{pool: pool}
}

// Ensure returns the document's summary row, creating an empty one on first
// request.
func (r *SummaryRepo) Ensure(ctx context.Context, userID, documentID uuid.UUID) (*models.Summary, error) {
	s := &models.Summary{}
	query := `INSERT INTO summaries (id, user_id, document_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id) DO UPDATE SET updated_at = summaries.updated_at
		RETURNING id, user_id, document_id, content, word_count, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, uuid.New(), userID, documentID).Scan(
		&s.ID, &s.UserID, &s.DocumentID, &s.Content, &s.WordCount, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SummaryRepo) GetByDocument(ctx context.Context, documentID uuid.UUID) (*models.Summary, error) {
	s := &models.Summary{}
	query := `SELECT id, user_id, document_id, content, word_count, created_at, updated_at
		FROM summaries WHERE document_id = $1`

	err := r.pool.QueryRow(ctx, query, documentID).Scan(
		&s.ID, &s.UserID, &s.DocumentID, &s.Content, &s.WordCount, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SummaryRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string, wordCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE summaries SET content = $1, word_count = $2, updated_at = NOW() WHERE id = $3",
		content, wordCount, id,
	)
	return err
}
