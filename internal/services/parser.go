package services

import (
	"regexp"
	"strconv"
	"strings"

	"studykit-backend/internal/models"
)

// splitRecords splits raw generator output on the record delimiter and drops
// blank segments. Each remaining segment is one candidate record.
func splitRecords(raw string) []string {
	var out []string
	for _, seg := range strings.Split(raw, RecordDelimiter) {
		if strings.TrimSpace(seg) != "" {
			out = append(out, seg)
		}
	}
	return out
}

// fieldValue returns the trimmed text after prefix when line starts with it.
func fieldValue(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}

// ParseFlashcards decodes Q:/A:/D: records. Candidates missing a question or
// an answer are dropped; at most count cards are returned.
func ParseFlashcards(raw string, count int) []models.Flashcard {
	cards := []models.Flashcard{}
	if count <= 0 {
		return cards
	}

	for _, candidate := range splitRecords(raw) {
		card := models.Flashcard{Difficulty: models.DifficultyMedium}

		for _, line := range strings.Split(candidate, "\n") {
			line = strings.TrimSpace(line)
			if v, ok := fieldValue(line, "Q:"); ok {
				card.Question = v
			} else if v, ok := fieldValue(line, "A:"); ok {
				card.Answer = v
			} else if v, ok := fieldValue(line, "D:"); ok {
				card.Difficulty = models.ParseDifficulty(v)
			}
		}

		if card.Question != "" && card.Answer != "" {
			cards = append(cards, card)
			if len(cards) == count {
				break
			}
		}
	}

	return cards
}

var optionPrefix = regexp.MustCompile(`^O\d:`)

// ParseQuiz decodes Q:/O1..O4:/C:/E:/D: records. A candidate survives only
// with a question, exactly four options and a correct answer. Options keep
// emission order, not label order.
func ParseQuiz(raw string, count int) []models.QuizQuestion {
	questions := []models.QuizQuestion{}
	if count <= 0 {
		return questions
	}

	for _, candidate := range splitRecords(raw) {
		q := models.QuizQuestion{Difficulty: models.DifficultyMedium}
		var options []string

		for _, line := range strings.Split(candidate, "\n") {
			line = strings.TrimSpace(line)
			if v, ok := fieldValue(line, "Q:"); ok {
				q.Question = v
			} else if optionPrefix.MatchString(line) {
				options = append(options, strings.TrimSpace(line[3:]))
			} else if v, ok := fieldValue(line, "C:"); ok {
				q.CorrectAnswer = v
			} else if v, ok := fieldValue(line, "E:"); ok {
				q.Explanation = v
			} else if v, ok := fieldValue(line, "D:"); ok {
				q.Difficulty = models.ParseDifficulty(v)
			}
		}

		if q.Question != "" && len(options) == 4 && q.CorrectAnswer != "" {
			q.Options = options
			questions = append(questions, q)
			if len(questions) == count {
				break
			}
		}
	}

	return questions
}

var answerLabel = regexp.MustCompile(`(?i)^(?:option\s*|o)?([1-4a-d])[.):]?$`)

// ValidateQuizAnswers keeps only questions whose correct answer resolves to
// one of their own options, and rewrites it to that option's exact text.
// Resolution order: exact match, case/space-insensitive match, option label
// ("O2", "2", "B", "Option 2").
func ValidateQuizAnswers(questions []models.QuizQuestion) []models.QuizQuestion {
	valid := make([]models.QuizQuestion, 0, len(questions))
	for _, q := range questions {
		if answer, ok := resolveCorrectAnswer(q.CorrectAnswer, q.Options); ok {
			q.CorrectAnswer = answer
			valid = append(valid, q)
		}
	}
	return valid
}

func resolveCorrectAnswer(answer string, options []string) (string, bool) {
	for _, o := range options {
		if o == answer {
			return o, true
		}
	}

	norm := normalizeAnswer(answer)
	for _, o := range options {
		if normalizeAnswer(o) == norm {
			return o, true
		}
	}

	if m := answerLabel.FindStringSubmatch(strings.TrimSpace(answer)); m != nil {
		idx := labelIndex(m[1])
		if idx >= 0 && idx < len(options) {
			return options[idx], true
		}
	}

	return "", false
}

func labelIndex(label string) int {
	if n, err := strconv.Atoi(label); err == nil {
		return n - 1
	}
	return int(strings.ToLower(label)[0] - 'a')
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
