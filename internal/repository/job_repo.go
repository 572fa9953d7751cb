package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studykit-backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = models.JobPending
	j.RetryCount = 0
	if j.MaxRetries <= 0 {
		j.MaxRetries = 3
	}

	configBytes := []byte(j.ConfigJSON)
	if len(configBytes) == 0 || !json.Valid(configBytes) {
		configBytes = []byte("{}")
	}

	query := `INSERT INTO jobs (id, user_id, type, reference_id, document_id, config_json, status, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		j.ID, j.UserID, j.Type, j.ReferenceID, j.DocumentID, configBytes, j.Status, j.RetryCount, j.MaxRetries,
	).Scan(&j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j := &models.Job{}
	query := `SELECT id, user_id, type, reference_id, document_id, config_json, status, retry_count, max_retries,
		error_code, error_message, created_at, completed_at
		FROM jobs WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.UserID, &j.Type, &j.ReferenceID, &j.DocumentID, &j.ConfigJSON, &j.Status,
		&j.RetryCount, &j.MaxRetries, &j.ErrorCode, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if status == models.JobCompleted || status == models.JobFailed {
		_, err := r.pool.Exec(ctx, "UPDATE jobs SET status = $1, completed_at = NOW() WHERE id = $2", status, id)
		return err
	}
	_, err := r.pool.Exec(ctx, "UPDATE jobs SET status = $1 WHERE id = $2", status, id)
	return err
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, code, errMsg string, retryCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE jobs SET error_code = $1, error_message = $2, retry_count = $3 WHERE id = $4",
		code, errMsg, retryCount, id,
	)
	return err
}
