package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"studykit-backend/internal/middleware"
	"studykit-backend/internal/models"
)

// allowedExtensions are the upload types the extractor understands.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
}

type BlobStore interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Delete(ctx context.Context, key string) error
}

type DocumentRepository interface {
	Create(ctx context.Context, d *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Document, int, error)
	GetChunks(ctx context.Context, id uuid.UUID) ([]models.Chunk, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type DeckCreator interface {
	CreateDeck(ctx context.Context, d *models.FlashcardDeck) error
}

type QuizCreator interface {
	Create(ctx context.Context, q *models.Quiz) error
}

type SummaryRepository interface {
	Ensure(ctx context.Context, userID, documentID uuid.UUID) (*models.Summary, error)
	GetByDocument(ctx context.Context, documentID uuid.UUID) (*models.Summary, error)
}

type JobCreator interface {
	Create(ctx context.Context, j *models.Job) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Assistant answers synchronous questions about a document.
type Assistant interface {
	Chat(ctx context.Context, question string, chunks []models.Chunk) (*models.ChatResponse, error)
	ExplainFromChunks(ctx context.Context, concept string, chunks []models.Chunk) (string, error)
}

type DocumentHandler struct {
	store          BlobStore
	docs           DocumentRepository
	decks          DeckCreator
	quizzes        QuizCreator
	summaries      SummaryRepository
	jobs           JobCreator
	queue          JobQueue
	assistant      Assistant
	maxUploadBytes int64
	log            *zap.Logger
}

type DocumentHandlerDeps struct {
	Store          BlobStore
	Documents      DocumentRepository
	Decks          DeckCreator
	Quizzes        QuizCreator
	Summaries      SummaryRepository
	Jobs           JobCreator
	Queue          JobQueue
	Assistant      Assistant
	MaxUploadBytes int64
}

func NewDocumentHandler(deps DocumentHandlerDeps, log *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		store:          deps.Store,
		docs:           deps.Documents,
		decks:          deps.Decks,
		quizzes:        deps.Quizzes,
		summaries:      deps.Summaries,
		jobs:           deps.Jobs,
		queue:          deps.Queue,
		assistant:      deps.Assistant,
		maxUploadBytes: deps.MaxUploadBytes,
		log:            log,
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File exceeds the upload limit", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "A file is required", r))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Unsupported file type",
			map[string]string{"file": "must be a PDF, DOCX or TXT file"}, r))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	doc := &models.Document{
		ID:       uuid.New(),
		UserID:   userID,
		Title:    title,
		FileName: header.Filename,
	}
	doc.StorageKey = userID.String() + "/" + doc.ID.String() + ext

	size, err := h.store.Save(r.Context(), doc.StorageKey, file)
	if err != nil {
		h.log.Error("failed to store upload", zap.String("key", doc.StorageKey), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}
	doc.SizeBytes = size

	if err := h.docs.Create(r.Context(), doc); err != nil {
		h.store.Delete(r.Context(), doc.StorageKey)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create document", r))
		return
	}

	job := &models.Job{
		UserID:      userID,
		Type:        models.JobDocumentProcessing,
		ReferenceID: doc.ID,
		DocumentID:  doc.ID,
	}
	if !h.startJob(w, r, job) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"document_id": doc.ID,
		"job_id":      job.ID,
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	docs, total, err := h.docs.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch documents", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	if err := h.docs.Delete(r.Context(), doc.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete document", r))
		return
	}
	if err := h.store.Delete(r.Context(), doc.StorageKey); err != nil {
		h.log.Warn("failed to delete stored file", zap.String("key", doc.StorageKey), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted"})
}

func (h *DocumentHandler) GenerateFlashcards(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateFlashcardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	doc, ok := h.readyDocument(w, r)
	if !ok {
		return
	}

	deck := &models.FlashcardDeck{
		UserID:     doc.UserID,
		DocumentID: doc.ID,
		Title:      titleOr(req.Title, doc.Title+" flashcards"),
		Requested:  req.Count,
	}
	if err := h.decks.CreateDeck(r.Context(), deck); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create deck", r))
		return
	}

	job := &models.Job{
		UserID:      doc.UserID,
		Type:        models.JobFlashcardGeneration,
		ReferenceID: deck.ID,
		DocumentID:  doc.ID,
	}
	job.ConfigJSON, _ = json.Marshal(req)
	if !h.startJob(w, r, job) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.ID,
		"deck_id": deck.ID,
	})
}

func (h *DocumentHandler) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	doc, ok := h.readyDocument(w, r)
	if !ok {
		return
	}

	quiz := &models.Quiz{
		UserID:     doc.UserID,
		DocumentID: doc.ID,
		Title:      titleOr(req.Title, doc.Title+" quiz"),
		Requested:  req.NumQuestions,
	}
	if err := h.quizzes.Create(r.Context(), quiz); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create quiz", r))
		return
	}

	job := &models.Job{
		UserID:      doc.UserID,
		Type:        models.JobQuizGeneration,
		ReferenceID: quiz.ID,
		DocumentID:  doc.ID,
	}
	job.ConfigJSON, _ = json.Marshal(req)
	if !h.startJob(w, r, job) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.ID,
		"quiz_id": quiz.ID,
	})
}

func (h *DocumentHandler) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.readyDocument(w, r)
	if !ok {
		return
	}

	summary, err := h.summaries.Ensure(r.Context(), doc.UserID, doc.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create summary", r))
		return
	}

	job := &models.Job{
		UserID:      doc.UserID,
		Type:        models.JobSummaryGeneration,
		ReferenceID: summary.ID,
		DocumentID:  doc.ID,
	}
	if !h.startJob(w, r, job) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":     job.ID,
		"summary_id": summary.ID,
	})
}

// GenerateStudyPack queues one job producing a deck, a quiz and the summary
// for a document together.
func (h *DocumentHandler) GenerateStudyPack(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateStudyPackRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return
		}
	}

	doc, ok := h.readyDocument(w, r)
	if !ok {
		return
	}
	title := titleOr(req.Title, doc.Title)

	deck := &models.FlashcardDeck{
		UserID:     doc.UserID,
		DocumentID: doc.ID,
		Title:      title + " flashcards",
		Requested:  req.Flashcards,
	}
	if err := h.decks.CreateDeck(r.Context(), deck); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create deck", r))
		return
	}

	quiz := &models.Quiz{
		UserID:     doc.UserID,
		DocumentID: doc.ID,
		Title:      title + " quiz",
		Requested:  req.NumQuestions,
	}
	if err := h.quizzes.Create(r.Context(), quiz); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create quiz", r))
		return
	}

	summary, err := h.summaries.Ensure(r.Context(), doc.UserID, doc.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create summary", r))
		return
	}

	targets := models.StudyPackTargets{DeckID: deck.ID, QuizID: quiz.ID, SummaryID: summary.ID}
	job := &models.Job{
		UserID:      doc.UserID,
		Type:        models.JobStudyPackGeneration,
		ReferenceID: doc.ID,
		DocumentID:  doc.ID,
	}
	job.ConfigJSON, _ = json.Marshal(targets)
	if !h.startJob(w, r, job) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":     job.ID,
		"deck_id":    deck.ID,
		"quiz_id":    quiz.ID,
		"summary_id": summary.ID,
	})
}

func (h *DocumentHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	summary, err := h.summaries.GetByDocument(r.Context(), doc.ID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Summary not found", r))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *DocumentHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	chunks, ok := h.documentChunks(w, r)
	if !ok {
		return
	}

	resp, err := h.assistant.Chat(r.Context(), req.Question, chunks)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req models.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	chunks, ok := h.documentChunks(w, r)
	if !ok {
		return
	}

	explanation, err := h.assistant.ExplainFromChunks(r.Context(), req.Concept, chunks)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ExplainResponse{Explanation: explanation})
}

// ownedDocument loads the {id} document and writes the error response when
// it is missing or belongs to someone else.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid document ID", r))
		return nil, false
	}

	doc, err := h.docs.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Document not found", r))
		return nil, false
	}

	if doc.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, false
	}
	return doc, true
}

func (h *DocumentHandler) readyDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return nil, false
	}
	if doc.Status != models.DocumentReady {
		writeJSON(w, http.StatusConflict, errorResp("DOCUMENT_NOT_READY", "Document is still processing or failed", r))
		return nil, false
	}
	return doc, true
}

func (h *DocumentHandler) documentChunks(w http.ResponseWriter, r *http.Request) ([]models.Chunk, bool) {
	doc, ok := h.readyDocument(w, r)
	if !ok {
		return nil, false
	}

	chunks, err := h.docs.GetChunks(r.Context(), doc.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load document", r))
		return nil, false
	}
	return chunks, true
}

// startJob records job and pushes it onto its queue.
func (h *DocumentHandler) startJob(w http.ResponseWriter, r *http.Request, job *models.Job) bool {
	if err := h.jobs.Create(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create job", r))
		return false
	}

	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.log.Error("failed to enqueue job", zap.String("job_id", job.ID.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue job", r))
		return false
	}
	return true
}

func titleOr(title, fallback string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return fallback
}
