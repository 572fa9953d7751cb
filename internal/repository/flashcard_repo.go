package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studykit-backend/internal/models"
)

type FlashcardRepo struct {
	pool *pgxpool.Pool
}

func NewFlashcardRepo(pool *pgxpool.Pool) *FlashcardRepo {
	return &FlashcardRepo{pool: pool}
}

// Deck operations

func (r *FlashcardRepo) CreateDeck(ctx context.Context, d *models.FlashcardDeck) error {
	d.ID = uuid.New()

	query := `INSERT INTO flashcard_decks (id, user_id, document_id, title, requested_count, card_count)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		d.ID, d.UserID, d.DocumentID, d.Title, d.Requested, d.CardCount,
	).Scan(&d.CreatedAt)
}

func (r *FlashcardRepo) GetDeckByID(ctx context.Context, id uuid.UUID) (*models.FlashcardDeck, error) {
	d := &models.FlashcardDeck{}
	query := `SELECT id, user_id, document_id, title, requested_count, card_count, created_at
		FROM flashcard_decks WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.UserID, &d.DocumentID, &d.Title, &d.Requested, &d.CardCount, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *FlashcardRepo) ListDecksByUser(ctx context.Context, userID uuid.UUID) ([]*models.FlashcardDeck, error) {
	query := `SELECT id, user_id, document_id, title, requested_count, card_count, created_at
		FROM flashcard_decks WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	decks := []*models.FlashcardDeck{}
	for rows.Next() {
		d := &models.FlashcardDeck{}
		err := rows.Scan(&d.ID, &d.UserID, &d.DocumentID, &d.Title, &d.Requested, &d.CardCount, &d.CreatedAt)
		if err != nil {
			return nil, err
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// Card operations

// ReplaceCards stores a deck's generated cards, in order, replacing any
// earlier generation, and updates the deck's card count.
func (r *FlashcardRepo) ReplaceCards(ctx context.Context, deckID uuid.UUID, cards []models.FlashcardCard) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM flashcard_cards WHERE deck_id = $1", deckID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i := range cards {
		cards[i].ID = uuid.New()
		cards[i].DeckID = deckID
		c := cards[i]
		batch.Queue(
			`INSERT INTO flashcard_cards (id, deck_id, position, question, answer, difficulty,
			 due, stability, ease, elapsed_days, scheduled_days, reps, lapses, state, last_review_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			c.ID, deckID, i, c.Question, c.Answer, c.Difficulty,
			c.Due, c.Stability, c.Ease, c.ElapsedDays, c.ScheduledDays, c.Reps, c.Lapses, c.State, c.LastReviewAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "UPDATE flashcard_decks SET card_count = $1 WHERE id = $2", len(cards), deckID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const cardColumns = `id, deck_id, question, answer, difficulty, due, stability, ease,
	elapsed_days, scheduled_days, reps, lapses, state, last_review_at`

func scanCard(row pgx.Row) (*models.FlashcardCard, error) {
	c := &models.FlashcardCard{}
	err := row.Scan(
		&c.ID, &c.DeckID, &c.Question, &c.Answer, &c.Difficulty, &c.Due, &c.Stability, &c.Ease,
		&c.ElapsedDays, &c.ScheduledDays, &c.Reps, &c.Lapses, &c.State, &c.LastReviewAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *FlashcardRepo) GetCardsByDeck(ctx context.Context, deckID uuid.UUID) ([]models.FlashcardCard, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+cardColumns+" FROM flashcard_cards WHERE deck_id = $1 ORDER BY position", deckID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []models.FlashcardCard{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func (r *FlashcardRepo) GetCard(ctx context.Context, cardID uuid.UUID) (*models.FlashcardCard, error) {
	return scanCard(r.pool.QueryRow(ctx,
		"SELECT "+cardColumns+" FROM flashcard_cards WHERE id = $1", cardID))
}

// GetCardOwner returns the user owning the deck cardID belongs to.
func (r *FlashcardRepo) GetCardOwner(ctx context.Context, cardID uuid.UUID) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT d.user_id FROM flashcard_cards c JOIN flashcard_decks d ON d.id = c.deck_id WHERE c.id = $1`,
		cardID,
	).Scan(&userID)
	return userID, err
}

func (r *FlashcardRepo) UpdateSchedule(ctx context.Context, c *models.FlashcardCard) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE flashcard_cards SET due = $1, stability = $2, ease = $3, elapsed_days = $4,
		 scheduled_days = $5, reps = $6, lapses = $7, state = $8, last_review_at = $9 WHERE id = $10`,
		c.Due, c.Stability, c.Ease, c.ElapsedDays, c.ScheduledDays, c.Reps, c.Lapses, c.State, c.LastReviewAt, c.ID,
	)
	return err
}
