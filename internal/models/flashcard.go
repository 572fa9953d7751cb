package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Difficulty is the closed set of difficulty labels the generator may emit.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty lower-cases s and returns it when it is a known label.
// Anything else yields DifficultyMedium.
func ParseDifficulty(s string) Difficulty {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d
	default:
		return DifficultyMedium
	}
}

type Flashcard struct {
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Difficulty Difficulty `json:"difficulty"`
}

type FlashcardDeck struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	Requested  int       `json:"requested_count"`
	CardCount  int       `json:"card_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// FlashcardCard is a persisted flashcard with its FSRS review state.
type FlashcardCard struct {
	ID     uuid.UUID `json:"id"`
	DeckID uuid.UUID `json:"deck_id"`
	Flashcard

	Due           time.Time  `json:"due"`
	Stability     float64    `json:"stability"`
	Ease          float64    `json:"ease"`
	ElapsedDays   int        `json:"elapsed_days"`
	ScheduledDays int        `json:"scheduled_days"`
	Reps          int        `json:"reps"`
	Lapses        int        `json:"lapses"`
	State         int        `json:"state"`
	LastReviewAt  *time.Time `json:"last_review_at"`
}

type GenerateFlashcardsRequest struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

type ReviewCardRequest struct {
	Rating string `json:"rating"` // "again" | "hard" | "good" | "easy"
}
