package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"studykit-backend/internal/middleware"
	"studykit-backend/internal/models"
	"studykit-backend/internal/services"
)

const quizLockTTL = 10 * time.Second

type QuizRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Quiz, error)
	SaveSession(ctx context.Context, id uuid.UUID, s *models.QuizSession) error
}

// Locker serializes writers of one key across API instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type QuizHandler struct {
	quizRepo QuizRepository
	engine   *services.QuizEngine
	locker   Locker
	log      *zap.Logger
}

func NewQuizHandler(quizRepo QuizRepository, engine *services.QuizEngine, locker Locker, log *zap.Logger) *QuizHandler {
	return &QuizHandler{
		quizRepo: quizRepo,
		engine:   engine,
		locker:   locker,
		log:      log,
	}
}

func (h *QuizHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	quizzes, err := h.quizRepo.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch quizzes", r))
		return
	}

	for _, q := range quizzes {
		hideAnswers(q)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quizzes": quizzes})
}

func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	quiz, ok := h.ownedQuiz(w, r)
	if !ok {
		return
	}

	hideAnswers(quiz)
	writeJSON(w, http.StatusOK, quiz)
}

func (h *QuizHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.QuestionIndex == nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"question_index": "is required"}, r))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid quiz ID", r))
		return
	}

	release, ok, err := h.locker.Acquire(r.Context(), "quiz_lock:"+id.String(), quizLockTTL)
	if err != nil {
		h.log.Error("quiz lock unavailable", zap.String("quiz_id", id.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record answer", r))
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, errorResp("QUIZ_BUSY", "Another answer for this quiz is being recorded", r))
		return
	}
	defer release()

	quiz, ok := h.ownedQuiz(w, r)
	if !ok {
		return
	}
	if quiz.TotalQuestions == 0 {
		writeJSON(w, http.StatusConflict, errorResp("QUIZ_NOT_READY", "Quiz has no questions yet", r))
		return
	}

	if err := h.engine.SubmitAnswer(&quiz.QuizSession, *req.QuestionIndex, req.SelectedAnswer); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.quizRepo.SaveSession(r.Context(), quiz.ID, &quiz.QuizSession); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to save answer", r))
		return
	}

	var correct bool
	for _, a := range quiz.UserAnswers {
		if a.QuestionIndex == *req.QuestionIndex {
			correct = a.IsCorrect
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_correct":      correct,
		"score":           quiz.Score,
		"total_questions": quiz.TotalQuestions,
		"completed":       quiz.CompletedAt != nil,
	})
}

func (h *QuizHandler) Results(w http.ResponseWriter, r *http.Request) {
	quiz, ok := h.ownedQuiz(w, r)
	if !ok {
		return
	}

	results := h.engine.Results(quiz.ID, &quiz.QuizSession)
	if quiz.CompletedAt == nil {
		hideResultAnswers(results)
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *QuizHandler) ownedQuiz(w http.ResponseWriter, r *http.Request) (*models.Quiz, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid quiz ID", r))
		return nil, false
	}

	quiz, err := h.quizRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Quiz not found", r))
		return nil, false
	}

	if quiz.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, false
	}
	return quiz, true
}

// hideAnswers blanks correct answers and explanations until the quiz is
// finished.
func hideAnswers(q *models.Quiz) {
	if q.CompletedAt != nil {
		return
	}
	questions := make([]models.QuizQuestion, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectAnswer = ""
		question.Explanation = ""
		questions[i] = question
	}
	q.Questions = questions
}

// hideResultAnswers keeps answered questions' correctness but withholds every
// correct answer while the quiz is open, since answers can still be replaced.
func hideResultAnswers(res *models.QuizResults) {
	for i := range res.Questions {
		res.Questions[i].CorrectAnswer = ""
		res.Questions[i].Explanation = ""
	}
}
