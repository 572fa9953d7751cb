package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"studykit-backend/internal/models"
)

const (
	DefaultChunkSizeWords    = 500
	DefaultChunkOverlapWords = 50
)

// ChunkText splits text into windows of about size words, each sharing
// overlap words with its predecessor. Windows prefer to end on a paragraph
// break when one falls in the last fifth of the window.
func ChunkText(text string, size, overlap int) []models.Chunk {
	if size <= 0 {
		size = DefaultChunkSizeWords
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	type word struct {
		text    string
		paraEnd bool
	}
	var words []word
	for _, para := range strings.Split(normalizeExtractedText(text), "\n\n") {
		fields := strings.Fields(para)
		for i, f := range fields {
			words = append(words, word{text: f, paraEnd: i == len(fields)-1})
		}
	}
	if len(words) == 0 {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	for start < len(words) {
		end := start + size
		if end >= len(words) {
			end = len(words)
		} else {
			for i := end - 1; i >= end-size/5 && i > start; i-- {
				if words[i].paraEnd {
					end = i + 1
					break
				}
			}
		}

		var b strings.Builder
		for i := start; i < end; i++ {
			b.WriteString(words[i].text)
			switch {
			case i == end-1:
			case words[i].paraEnd:
				b.WriteString("\n\n")
			default:
				b.WriteByte(' ')
			}
		}
		chunks = append(chunks, models.Chunk{Index: len(chunks), Content: b.String()})

		if end == len(words) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// ChunkSelector picks which chunks feed a chat prompt.
type ChunkSelector interface {
	Select(question string, chunks []models.Chunk, budget int) []models.Chunk
}

// NewChunkSelector returns the selector registered under name.
func NewChunkSelector(name string) (ChunkSelector, error) {
	switch name {
	case "", "sequential":
		return SequentialSelector{}, nil
	case "lexical":
		return LexicalSelector{}, nil
	default:
		return nil, fmt.Errorf("unknown chunk selector %q", name)
	}
}

// SequentialSelector keeps chunks in document order until the rendered
// context would exceed the budget.
type SequentialSelector struct{}

func (SequentialSelector) Select(_ string, chunks []models.Chunk, budget int) []models.Chunk {
	return fillBudget(chunks, budget)
}

// LexicalSelector ranks chunks by how many distinct question terms they
// contain, then fills the budget in rank order. Ties keep document order.
type LexicalSelector struct{}

func (LexicalSelector) Select(question string, chunks []models.Chunk, budget int) []models.Chunk {
	terms := queryTerms(question)
	if len(terms) == 0 {
		return fillBudget(chunks, budget)
	}

	type scored struct {
		chunk models.Chunk
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		ranked[i] = scored{chunk: c, score: overlapScore(terms, c.Content)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	ordered := make([]models.Chunk, len(ranked))
	for i, r := range ranked {
		ordered[i] = r.chunk
	}
	return fillBudget(ordered, budget)
}

func fillBudget(chunks []models.Chunk, budget int) []models.Chunk {
	if budget <= 0 {
		return chunks
	}

	var out []models.Chunk
	used := 0
	for _, c := range chunks {
		cost := len(chunkLabel(len(out)+1)) + 1 + len([]rune(c.Content))
		if len(out) > 0 {
			cost += 2
		}
		if used+cost > budget {
			break
		}
		used += cost
		out = append(out, c)
	}

	// Always hand over something; the prompt builder truncates the rest.
	if len(out) == 0 && len(chunks) > 0 {
		out = chunks[:1]
	}
	return out
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "does": true, "for": true, "from": true, "how": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true, "this": true,
	"to": true, "was": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "why": true, "with": true,
}

func queryTerms(q string) map[string]bool {
	terms := make(map[string]bool)
	for _, t := range tokenize(q) {
		if len(t) > 1 && !stopWords[t] {
			terms[t] = true
		}
	}
	return terms
}

func overlapScore(terms map[string]bool, content string) int {
	seen := make(map[string]bool)
	for _, t := range tokenize(content) {
		if terms[t] {
			seen[t] = true
		}
	}
	return len(seen)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
