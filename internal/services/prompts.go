package services

import (
	"fmt"
	"strings"

	"studykit-backend/internal/models"
)

// PromptKind names one artifact type the pipeline can request.
type PromptKind string

const (
	PromptFlashcards PromptKind = "flashcards"
	PromptQuiz       PromptKind = "quiz"
	PromptSummary    PromptKind = "summary"
	PromptChat       PromptKind = "chat"
	PromptExplain    PromptKind = "explain"
)

// Character budgets applied to each prompt's text input.
const (
	FlashcardsTextLimit = 15000
	QuizTextLimit       = 15000
	SummaryTextLimit    = 20000
	ChatContextLimit    = 12000
	ExplainContextLimit = 10000
)

// RecordDelimiter separates records in the flashcard and quiz grammars.
const RecordDelimiter = "---"

// PromptInput carries the inputs of every prompt kind; each kind reads
// only the fields it needs.
type PromptInput struct {
	Text     string
	Count    int
	Question string
	Chunks   []models.Chunk
	Concept  string
}

// BuildPrompt renders the prompt for kind.
func BuildPrompt(kind PromptKind, in PromptInput) (string, error) {
	switch kind {
	case PromptFlashcards:
		return BuildFlashcardsPrompt(in.Text, in.Count), nil
	case PromptQuiz:
		return BuildQuizPrompt(in.Text, in.Count), nil
	case PromptSummary:
		return BuildSummaryPrompt(in.Text), nil
	case PromptChat:
		return BuildChatPrompt(in.Question, in.Chunks), nil
	case PromptExplain:
		return BuildExplainPrompt(in.Concept, in.Text), nil
	default:
		return "", fmt.Errorf("unknown prompt kind %q", kind)
	}
}

func BuildFlashcardsPrompt(text string, count int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Generate exactly %d educational flashcards from the following text.\n", count))
	b.WriteString("Format each flashcard as:\n")
	b.WriteString("Q: [Clear, specific question]\n")
	b.WriteString("A: [Concise, accurate answer]\n")
	b.WriteString("D: [Difficulty level: easy, medium, or hard]\n\n")
	b.WriteString(fmt.Sprintf("Separate each flashcard with a line containing only %q\n\n", RecordDelimiter))
	b.WriteString("Text:\n")
	b.WriteString(truncateRunes(text, FlashcardsTextLimit))

	return b.String()
}

func BuildQuizPrompt(text string, numQuestions int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Generate exactly %d multiple choice questions from the following text.\n", numQuestions))
	b.WriteString("Format each question as:\n")
	b.WriteString("Q: [Question]\n")
	b.WriteString("O1: [Option 1]\n")
	b.WriteString("O2: [Option 2]\n")
	b.WriteString("O3: [Option 3]\n")
	b.WriteString("O4: [Option 4]\n")
	b.WriteString("C: [Correct option, copied exactly from one of the options]\n")
	b.WriteString("E: [Brief explanation]\n")
	b.WriteString("D: [Difficulty: easy, medium, or hard]\n\n")
	b.WriteString(fmt.Sprintf("Separate questions with a line containing only %q\n\n", RecordDelimiter))
	b.WriteString("Text:\n")
	b.WriteString(truncateRunes(text, QuizTextLimit))

	return b.String()
}

func BuildSummaryPrompt(text string) string {
	var b strings.Builder

	b.WriteString("Provide a concise summary of the following text.\n")
	b.WriteString("Highlight key ideas clearly.\n\n")
	b.WriteString("Text:\n")
	b.WriteString(truncateRunes(text, SummaryTextLimit))

	return b.String()
}

func BuildChatPrompt(question string, chunks []models.Chunk) string {
	var b strings.Builder

	b.WriteString("Answer the user's question based on the context below.\n")
	b.WriteString("If the answer is not in the context, say so.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(truncateRunes(BuildChatContext(chunks), ChatContextLimit))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")

	return b.String()
}

func BuildExplainPrompt(concept, context string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Explain %q clearly with examples if needed.\n\n", concept))
	b.WriteString("Context:\n")
	b.WriteString(truncateRunes(context, ExplainContextLimit))

	return b.String()
}

// BuildChatContext labels chunks [Chunk 1], [Chunk 2], ... by position and
// joins them with a blank line.
func BuildChatContext(chunks []models.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = chunkLabel(i+1) + "\n" + c.Content
	}
	return strings.Join(parts, "\n\n")
}

func chunkLabel(n int) string {
	return fmt.Sprintf("[Chunk %d]", n)
}

// truncateRunes keeps the first limit characters of s.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
