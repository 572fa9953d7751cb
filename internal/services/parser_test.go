package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studykit-backend/internal/models"
)

func TestParseFlashcards_DropsRecordMissingAnswer(t *testing.T) {
	raw := "Q: What is 2+2?\nA: 4\nD: easy\n---\nQ: bad\n"

	cards := ParseFlashcards(raw, 5)

	require.Len(t, cards, 1)
	assert.Equal(t, models.Flashcard{Question: "What is 2+2?", Answer: "4", Difficulty: models.DifficultyEasy}, cards[0])
}

func TestParseFlashcards_UnknownDifficultyDefaultsToMedium(t *testing.T) {
	cards := ParseFlashcards("Q: q\nA: a\nD: extreme", 1)

	require.Len(t, cards, 1)
	assert.Equal(t, models.DifficultyMedium, cards[0].Difficulty)
}

func TestParseFlashcards_DifficultyIsCaseInsensitive(t *testing.T) {
	cards := ParseFlashcards("Q: q\nA: a\nD: HARD", 1)

	require.Len(t, cards, 1)
	assert.Equal(t, models.DifficultyHard, cards[0].Difficulty)
}

func TestParseFlashcards_NeverExceedsCount(t *testing.T) {
	var records []string
	for i := 0; i < 8; i++ {
		records = append(records, fmt.Sprintf("Q: question %d\nA: answer %d", i, i))
	}
	raw := strings.Join(records, "\n---\n")

	cards := ParseFlashcards(raw, 3)

	require.Len(t, cards, 3)
	assert.Equal(t, "question 0", cards[0].Question)
	assert.Equal(t, "question 2", cards[2].Question)
}

func TestParseFlashcards_ToleratesChatter(t *testing.T) {
	raw := "Sure! Here are your flashcards:\n\n---\n  Q:   What is DNA?  \nNote: trivia\n  A: Genetic material\n---\n\n---\nThanks!"

	cards := ParseFlashcards(raw, 10)

	require.Len(t, cards, 1)
	assert.Equal(t, "What is DNA?", cards[0].Question)
	assert.Equal(t, "Genetic material", cards[0].Answer)
	assert.Equal(t, models.DifficultyMedium, cards[0].Difficulty)
}

func TestParseFlashcards_NonPositiveCount(t *testing.T) {
	assert.Empty(t, ParseFlashcards("Q: q\nA: a", 0))
	assert.NotNil(t, ParseFlashcards("Q: q\nA: a", -1))
}

func TestParseFlashcards_EmptyInput(t *testing.T) {
	cards := ParseFlashcards("", 5)
	assert.NotNil(t, cards)
	assert.Empty(t, cards)
}

const validQuizRecord = `Q: Which planet is largest?
O1: Mars
O2: Jupiter
O3: Venus
O4: Mercury
C: Jupiter
E: Jupiter is the largest planet.
D: easy`

func TestParseQuiz_ValidRecord(t *testing.T) {
	questions := ParseQuiz(validQuizRecord, 1)

	require.Len(t, questions, 1)
	q := questions[0]
	assert.Equal(t, "Which planet is largest?", q.Question)
	assert.Equal(t, []string{"Mars", "Jupiter", "Venus", "Mercury"}, q.Options)
	assert.Equal(t, "Jupiter", q.CorrectAnswer)
	assert.Equal(t, "Jupiter is the largest planet.", q.Explanation)
	assert.Equal(t, models.DifficultyEasy, q.Difficulty)
}

func TestParseQuiz_DropsRecordWithThreeOptions(t *testing.T) {
	threeOptions := "Q: Pick one\nO1: a\nO2: b\nO3: c\nC: a\nE: because\nD: easy"
	raw := threeOptions + "\n---\n" + validQuizRecord

	questions := ParseQuiz(raw, 5)

	require.Len(t, questions, 1)
	assert.Equal(t, "Which planet is largest?", questions[0].Question)
}

func TestParseQuiz_DropsRecordWithFiveOptions(t *testing.T) {
	raw := "Q: Pick one\nO1: a\nO2: b\nO3: c\nO4: d\nO5: e\nC: a"

	assert.Empty(t, ParseQuiz(raw, 5))
}

func TestParseQuiz_RequiresCorrectAnswer(t *testing.T) {
	raw := "Q: Pick one\nO1: a\nO2: b\nO3: c\nO4: d\nE: none"

	assert.Empty(t, ParseQuiz(raw, 5))
}

func TestParseQuiz_KeepsEmissionOrder(t *testing.T) {
	raw := "Q: Order?\nO2: second\nO1: first\nO4: fourth\nO3: third\nC: first"

	questions := ParseQuiz(raw, 1)

	require.Len(t, questions, 1)
	assert.Equal(t, []string{"second", "first", "fourth", "third"}, questions[0].Options)
}

func TestParseQuiz_DefaultsOptionalFields(t *testing.T) {
	raw := "Q: Pick one\nO1: a\nO2: b\nO3: c\nO4: d\nC: a"

	questions := ParseQuiz(raw, 1)

	require.Len(t, questions, 1)
	assert.Empty(t, questions[0].Explanation)
	assert.Equal(t, models.DifficultyMedium, questions[0].Difficulty)
}

func TestParseQuiz_NeverExceedsCount(t *testing.T) {
	raw := strings.Repeat(validQuizRecord+"\n---\n", 6)

	assert.Len(t, ParseQuiz(raw, 4), 4)
}

func TestValidateQuizAnswers(t *testing.T) {
	options := []string{"Mars", "Jupiter", "Venus", "Mercury"}
	tests := []struct {
		name    string
		answer  string
		want    string
		allowed bool
	}{
		{"exact", "Jupiter", "Jupiter", true},
		{"case and spacing", "  jupiter ", "Jupiter", true},
		{"label O2", "O2", "Jupiter", true},
		{"bare digit", "3", "Venus", true},
		{"letter", "d", "Mercury", true},
		{"option word", "Option 1", "Mars", true},
		{"label with dot", "B.", "Jupiter", true},
		{"not an option", "Saturn", "", false},
		{"out of range label", "O5", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := models.QuizQuestion{Question: "Largest?", Options: options, CorrectAnswer: tc.answer}

			got := ValidateQuizAnswers([]models.QuizQuestion{q})

			if !tc.allowed {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tc.want, got[0].CorrectAnswer)
		})
	}
}

func TestValidateQuizAnswers_KeepsOrderOfSurvivors(t *testing.T) {
	mk := func(question, answer string) models.QuizQuestion {
		return models.QuizQuestion{Question: question, Options: []string{"a", "b", "c", "d"}, CorrectAnswer: answer}
	}
	in := []models.QuizQuestion{mk("one", "a"), mk("two", "z"), mk("three", "c")}

	got := ValidateQuizAnswers(in)

	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Question)
	assert.Equal(t, "three", got[1].Question)
}
