package services

import (
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"studykit-backend/internal/models"
)

// ReviewScheduler applies FSRS spaced-repetition updates to flashcards.
type ReviewScheduler struct {
	params fsrs.Parameters
}

func NewReviewScheduler() *ReviewScheduler {
	return &ReviewScheduler{params: fsrs.DefaultParam()}
}

// NewCardState gives a freshly generated card its initial schedule: new and
// due immediately.
func (s *ReviewScheduler) NewCardState(card *models.FlashcardCard, now time.Time) {
	applyFSRSCard(card, fsrs.Card{Due: now, State: fsrs.New})
}

// Review rates card and moves it to its next schedule.
func (s *ReviewScheduler) Review(card *models.FlashcardCard, rating string, now time.Time) error {
	r, err := ParseRating(rating)
	if err != nil {
		return err
	}

	scheduling := s.params.Repeat(toFSRSCard(card), now)
	info, ok := scheduling[r]
	if !ok {
		return &ValidationError{Fields: map[string]string{"rating": "unsupported rating"}}
	}
	applyFSRSCard(card, info.Card)
	return nil
}

func ParseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, &ValidationError{Fields: map[string]string{"rating": "must be one of again, hard, good, easy"}}
	}
}

func toFSRSCard(c *models.FlashcardCard) fsrs.Card {
	card := fsrs.Card{
		Due:           c.Due,
		Stability:     c.Stability,
		Difficulty:    c.Ease,
		ElapsedDays:   uint64(max(c.ElapsedDays, 0)),
		ScheduledDays: uint64(max(c.ScheduledDays, 0)),
		Reps:          uint64(max(c.Reps, 0)),
		Lapses:        uint64(max(c.Lapses, 0)),
		State:         fsrs.State(max(c.State, 0)),
	}
	if c.LastReviewAt != nil {
		card.LastReview = *c.LastReviewAt
	}
	return card
}

func applyFSRSCard(c *models.FlashcardCard, f fsrs.Card) {
	c.Due = f.Due
	c.Stability = f.Stability
	c.Ease = f.Difficulty
	c.ElapsedDays = int(f.ElapsedDays)
	c.ScheduledDays = int(f.ScheduledDays)
	c.Reps = int(f.Reps)
	c.Lapses = int(f.Lapses)
	c.State = int(f.State)
	if !f.LastReview.IsZero() {
		last := f.LastReview
		c.LastReviewAt = &last
	} else {
		c.LastReviewAt = nil
	}
}
