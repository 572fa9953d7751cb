package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studykit-backend/internal/middleware"
	"studykit-backend/internal/models"
)

type FlashcardRepository interface {
	GetDeckByID(ctx context.Context, id uuid.UUID) (*models.FlashcardDeck, error)
	ListDecksByUser(ctx context.Context, userID uuid.UUID) ([]*models.FlashcardDeck, error)
	GetCardsByDeck(ctx context.Context, deckID uuid.UUID) ([]models.FlashcardCard, error)
	GetCard(ctx context.Context, cardID uuid.UUID) (*models.FlashcardCard, error)
	GetCardOwner(ctx context.Context, cardID uuid.UUID) (uuid.UUID, error)
	UpdateSchedule(ctx context.Context, c *models.FlashcardCard) error
}

// CardScheduler advances a card's review state for one rating.
type CardScheduler interface {
	Review(card *models.FlashcardCard, rating string, now time.Time) error
}

type FlashcardHandler struct {
	flashRepo FlashcardRepository
	scheduler CardScheduler
	now       func() time.Time
}

func NewFlashcardHandler(flashRepo FlashcardRepository, scheduler CardScheduler) *FlashcardHandler {
	return &FlashcardHandler{
		flashRepo: flashRepo,
		scheduler: scheduler,
		now:       time.Now,
	}
}

func (h *FlashcardHandler) ListDecks(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	decks, err := h.flashRepo.ListDecksByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch decks", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"decks": decks})
}

func (h *FlashcardHandler) GetDeck(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid deck ID", r))
		return
	}

	deck, err := h.flashRepo.GetDeckByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Deck not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if deck.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	cards, err := h.flashRepo.GetCardsByDeck(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch cards", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deck":  deck,
		"cards": cards,
	})
}

func (h *FlashcardHandler) ReviewCard(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid card ID", r))
		return
	}

	var req models.ReviewCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	ownerID, err := h.flashRepo.GetCardOwner(r.Context(), cardID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Card not found", r))
		return
	}
	if ownerID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	card, err := h.flashRepo.GetCard(r.Context(), cardID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Card not found", r))
		return
	}

	if err := h.scheduler.Review(card, req.Rating, h.now()); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.flashRepo.UpdateSchedule(r.Context(), card); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to save review", r))
		return
	}

	writeJSON(w, http.StatusOK, card)
}
