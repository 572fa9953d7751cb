package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExtractedDocument is the plain-text view of an uploaded file.
type ExtractedDocument struct {
	Text      string            `json:"text"`
	PageCount int               `json:"page_count"`
	Metadata  map[string]string `json:"metadata"`
}

// HasText reports whether extraction produced any non-blank text.
func (d *ExtractedDocument) HasText() bool {
	if d == nil {
		return false
	}
	for _, r := range d.Text {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}

// Chunk is an ordered slice of a document's extracted text.
type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

type Document struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Title         string          `json:"title"`
	FileName      string          `json:"file_name"`
	StorageKey    string          `json:"-"`
	SizeBytes     int64           `json:"size_bytes"`
	Status        string          `json:"status"` // "pending" | "processing" | "ready" | "failed"
	ExtractedText *string         `json:"-"`
	PageCount     int             `json:"page_count"`
	MetadataJSON  json.RawMessage `json:"metadata"`
	ErrorMessage  *string         `json:"error_message"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at"`
}

const (
	DocumentPending    = "pending"
	DocumentProcessing = "processing"
	DocumentReady      = "ready"
	DocumentFailed     = "failed"
)
