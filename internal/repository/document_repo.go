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

type DocumentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

const documentColumns = `id, user_id, title, file_name, storage_key, size_bytes, status,
	extracted_text, page_count, metadata_json, error_message, created_at, processed_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	d := &models.Document{}
	err := row.Scan(
		&d.ID, &d.UserID, &d.Title, &d.FileName, &d.StorageKey, &d.SizeBytes, &d.Status,
		&d.ExtractedText, &d.PageCount, &d.MetadataJSON, &d.ErrorMessage, &d.CreatedAt, &d.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DocumentRepo) Create(ctx context.Context, d *models.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = models.DocumentPending

	query := `INSERT INTO documents (id, user_id, title, file_name, storage_key, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		d.ID, d.UserID, d.Title, d.FileName, d.StorageKey, d.SizeBytes, d.Status,
	).Scan(&d.CreatedAt)
}

func (r *DocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return scanDocument(r.pool.QueryRow(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = $1", id))
}

func (r *DocumentRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Document, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents WHERE user_id = $1", userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE documents SET status = $1, error_message = $2 WHERE id = $3",
		status, errMsg, id,
	)
	return err
}

// SaveExtraction stores the extracted text and replaces the document's
// chunks in one transaction, then marks the document ready.
func (r *DocumentRepo) SaveExtraction(ctx context.Context, id uuid.UUID, doc *models.ExtractedDocument, chunks []models.Chunk) error {
	metaBytes, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE documents SET extracted_text = $1, page_count = $2, metadata_json = $3,
		 status = $4, error_message = NULL, processed_at = NOW() WHERE id = $5`,
		doc.Text, doc.PageCount, metaBytes, models.DocumentReady, id,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM document_chunks WHERE document_id = $1", id); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue("INSERT INTO document_chunks (document_id, chunk_index, content) VALUES ($1, $2, $3)",
			id, c.Index, c.Content)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *DocumentRepo) GetChunks(ctx context.Context, id uuid.UUID) ([]models.Chunk, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT chunk_index, content FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.Index, &c.Content); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	return err
}
