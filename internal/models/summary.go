package models

import (
	"time"

	"github.com/google/uuid"
)

type Summary struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Content    *string   `json:"content"`
	WordCount  int       `json:"word_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StudyPack bundles the artifacts produced for one document in a single run.
type StudyPack struct {
	Flashcards []Flashcard    `json:"flashcards"`
	Questions  []QuizQuestion `json:"questions"`
	Summary    string         `json:"summary"`
}

type GenerateStudyPackRequest struct {
	Title        string `json:"title"`
	Flashcards   int    `json:"flashcards"`
	NumQuestions int    `json:"num_questions"`
}

// StudyPackTargets is the config of a study-pack job: the rows its
// artifacts are written into.
type StudyPackTargets struct {
	DeckID    uuid.UUID `json:"deck_id"`
	QuizID    uuid.UUID `json:"quiz_id"`
	SummaryID uuid.UUID `json:"summary_id"`
}
