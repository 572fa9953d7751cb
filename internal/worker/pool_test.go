package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studykit-backend/internal/models"
	"studykit-backend/internal/services"
)

// fakeBackend implements every Deps interface in memory.
type fakeBackend struct {
	mu sync.Mutex

	blobs     map[string][]byte
	documents map[uuid.UUID]*models.Document
	decks     map[uuid.UUID]*models.FlashcardDeck
	quizzes   map[uuid.UUID]*models.Quiz

	savedChunks []models.Chunk
	cards       []models.FlashcardCard
	sessions    map[uuid.UUID]*models.QuizSession
	summary     string
	summaryWC   int

	jobStatuses []string
	jobErrors   []string
	docStatuses []string
	completed   []models.CompletedEvent
	failed      []models.ErrorEvent
	steps       []string

	flashcards []models.Flashcard
	questions  []models.QuizQuestion
	genErr     error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		blobs:     map[string][]byte{},
		documents: map[uuid.UUID]*models.Document{},
		decks:     map[uuid.UUID]*models.FlashcardDeck{},
		quizzes:   map[uuid.UUID]*models.Quiz{},
		sessions:  map[uuid.UUID]*models.QuizSession{},
	}
}

func (f *fakeBackend) Load(ctx context.Context, key string) ([]byte, error) {
	b, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: not found", key)
	}
	return b, nil
}

func (f *fakeBackend) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	d, ok := f.documents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (f *fakeBackend) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error {
	f.docStatuses = append(f.docStatuses, status)
	return nil
}

func (f *fakeBackend) SaveExtraction(ctx context.Context, id uuid.UUID, doc *models.ExtractedDocument, chunks []models.Chunk) error {
	f.savedChunks = chunks
	return nil
}

func (f *fakeBackend) GetDeckByID(ctx context.Context, id uuid.UUID) (*models.FlashcardDeck, error) {
	d, ok := f.decks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (f *fakeBackend) ReplaceCards(ctx context.Context, deckID uuid.UUID, cards []models.FlashcardCard) error {
	f.cards = cards
	return nil
}

func (f *fakeBackend) UpdateContent(ctx context.Context, id uuid.UUID, content string, wordCount int) error {
	f.summary, f.summaryWC = content, wordCount
	return nil
}

func (f *fakeBackend) GenerateFlashcards(ctx context.Context, text string, count int) ([]models.Flashcard, error) {
	return f.flashcards, f.genErr
}

func (f *fakeBackend) GenerateQuiz(ctx context.Context, text string, numQuestions int) ([]models.QuizQuestion, error) {
	return f.questions, f.genErr
}

func (f *fakeBackend) GenerateSummary(ctx context.Context, text string) (string, error) {
	if f.genErr != nil {
		return "", f.genErr
	}
	return "Cells divide by mitosis.", nil
}

func (f *fakeBackend) GenerateStudyPack(ctx context.Context, text string, opts services.StudyPackOptions) (*models.StudyPack, error) {
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &models.StudyPack{Flashcards: f.flashcards, Questions: f.questions, Summary: "Cells divide by mitosis."}, nil
}

func (f *fakeBackend) Status(ctx context.Context, userID, jobID uuid.UUID, step int, stepName string) {
	f.steps = append(f.steps, stepName)
}

func (f *fakeBackend) Completed(ctx context.Context, userID uuid.UUID, ev models.CompletedEvent) {
	f.completed = append(f.completed, ev)
}

func (f *fakeBackend) Failed(ctx context.Context, userID uuid.UUID, ev models.ErrorEvent) {
	f.failed = append(f.failed, ev)
}

// quizStore and jobStore separate the methods whose names collide with
// Documents on fakeBackend.
type quizStore struct{ f *fakeBackend }

func (q quizStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	quiz, ok := q.f.quizzes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return quiz, nil
}

func (q quizStore) SaveSession(ctx context.Context, id uuid.UUID, s *models.QuizSession) error {
	q.f.sessions[id] = s
	return nil
}

type jobStore struct{ f *fakeBackend }

func (j jobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	j.f.mu.Lock()
	defer j.f.mu.Unlock()
	j.f.jobStatuses = append(j.f.jobStatuses, status)
	return nil
}

func (j jobStore) UpdateError(ctx context.Context, id uuid.UUID, code, errMsg string, retryCount int) error {
	j.f.mu.Lock()
	defer j.f.mu.Unlock()
	j.f.jobErrors = append(j.f.jobErrors, code)
	return nil
}

func newTestPool(t *testing.T, f *fakeBackend) (*Pool, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	deps := Deps{
		Store:             f,
		Extractor:         services.NewFileExtractService(),
		Documents:         f,
		Decks:             f,
		Quizzes:           quizStore{f},
		Summaries:         f,
		Jobs:              jobStore{f},
		Study:             f,
		Engine:            services.NewQuizEngine(nil),
		Scheduler:         services.NewReviewScheduler(),
		Events:            f,
		ChunkSizeWords:    4,
		ChunkOverlapWords: 1,
	}
	p := NewPool(db, deps, 1, zap.NewNop())
	p.now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(p.cancel)
	return p, mock
}

func readyDocument(f *fakeBackend, text string) *models.Document {
	doc := &models.Document{ID: uuid.New(), Status: models.DocumentReady, ExtractedText: &text}
	f.documents[doc.ID] = doc
	return doc
}

func TestPool_ProcessDocument(t *testing.T) {
	f := newFakeBackend()
	doc := &models.Document{ID: uuid.New(), StorageKey: "u/doc.txt", Status: models.DocumentPending}
	f.documents[doc.ID] = doc
	f.blobs["u/doc.txt"] = []byte("one two three four five six seven")
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobDocumentProcessing, ReferenceID: doc.ID}

	p.run(context.Background(), job, zap.NewNop())

	assert.Len(t, f.savedChunks, 2)
	assert.Equal(t, []string{models.DocumentProcessing}, f.docStatuses)
	assert.Equal(t, []string{models.JobProcessing, models.JobCompleted}, f.jobStatuses)
	require.Len(t, f.completed, 1)
	assert.Equal(t, "document", f.completed[0].ResultType)
	assert.Equal(t, 2, f.completed[0].Count)
}

func TestPool_ProcessDocument_NoTextFailsPermanently(t *testing.T) {
	f := newFakeBackend()
	doc := &models.Document{ID: uuid.New(), StorageKey: "u/blank.txt"}
	f.documents[doc.ID] = doc
	f.blobs["u/blank.txt"] = []byte("  \n \n")
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobDocumentProcessing, ReferenceID: doc.ID}

	p.run(context.Background(), job, zap.NewNop())

	assert.Equal(t, []string{models.JobProcessing, models.JobFailed}, f.jobStatuses)
	assert.Equal(t, []string{"DOCUMENT_UNREADABLE"}, f.jobErrors)
	assert.Equal(t, []string{models.DocumentProcessing, models.DocumentFailed}, f.docStatuses)
	require.Len(t, f.failed, 1)
	assert.Equal(t, "DOCUMENT_UNREADABLE", f.failed[0].ErrorCode)
	assert.Equal(t, 1, job.RetryCount)
}

func TestPool_ProcessFlashcards(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "Mitochondria make ATP.")
	deck := &models.FlashcardDeck{ID: uuid.New(), DocumentID: doc.ID, Requested: 2}
	f.decks[deck.ID] = deck
	f.flashcards = []models.Flashcard{
		{Question: "What makes ATP?", Answer: "Mitochondria", Difficulty: "easy"},
		{Question: "ATP is?", Answer: "Energy", Difficulty: "medium"},
	}
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobFlashcardGeneration, ReferenceID: deck.ID, DocumentID: doc.ID}

	p.run(context.Background(), job, zap.NewNop())

	require.Len(t, f.cards, 2)
	assert.Equal(t, "What makes ATP?", f.cards[0].Question)
	assert.Equal(t, p.now(), f.cards[0].Due)
	require.Len(t, f.completed, 1)
	assert.Equal(t, "flashcard_deck", f.completed[0].ResultType)
	assert.Equal(t, deck.ID, f.completed[0].ResultID)
}

func TestPool_ProcessQuiz_NoValidRecords(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "text")
	quiz := &models.Quiz{ID: uuid.New(), DocumentID: doc.ID, Requested: 5}
	f.quizzes[quiz.ID] = quiz
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobQuizGeneration, ReferenceID: quiz.ID}

	p.run(context.Background(), job, zap.NewNop())

	assert.Empty(t, f.sessions)
	assert.Equal(t, []string{"NO_VALID_RECORDS"}, f.jobErrors)
	assert.Equal(t, models.JobFailed, f.jobStatuses[len(f.jobStatuses)-1])
}

func TestPool_ProcessQuiz(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "text")
	quiz := &models.Quiz{ID: uuid.New(), DocumentID: doc.ID, Requested: 1}
	f.quizzes[quiz.ID] = quiz
	f.questions = []models.QuizQuestion{{Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "a"}}
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobQuizGeneration, ReferenceID: quiz.ID}

	p.run(context.Background(), job, zap.NewNop())

	session := f.sessions[quiz.ID]
	require.NotNil(t, session)
	assert.Equal(t, 1, session.TotalQuestions)
	assert.Empty(t, session.UserAnswers)
	assert.Equal(t, "quiz", f.completed[0].ResultType)
}

func TestPool_ProcessSummary(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "Long lecture text.")
	summaryID := uuid.New()
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobSummaryGeneration, ReferenceID: summaryID, DocumentID: doc.ID}

	p.run(context.Background(), job, zap.NewNop())

	assert.Equal(t, "Cells divide by mitosis.", f.summary)
	assert.Equal(t, 4, f.summaryWC)
	assert.Equal(t, 4, f.completed[0].Count)
}

func TestPool_ProcessStudyPack(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "Mitochondria make ATP.")
	deck := &models.FlashcardDeck{ID: uuid.New(), DocumentID: doc.ID, Requested: 1}
	quiz := &models.Quiz{ID: uuid.New(), DocumentID: doc.ID, Requested: 1}
	f.decks[deck.ID] = deck
	f.quizzes[quiz.ID] = quiz
	f.flashcards = []models.Flashcard{{Question: "What makes ATP?", Answer: "Mitochondria", Difficulty: "easy"}}
	f.questions = []models.QuizQuestion{{Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "a"}}
	p, _ := newTestPool(t, f)

	targets := models.StudyPackTargets{DeckID: deck.ID, QuizID: quiz.ID, SummaryID: uuid.New()}
	config, err := json.Marshal(targets)
	require.NoError(t, err)
	job := &models.Job{ID: uuid.New(), Type: models.JobStudyPackGeneration, ReferenceID: doc.ID, DocumentID: doc.ID, ConfigJSON: config}

	p.run(context.Background(), job, zap.NewNop())

	require.Len(t, f.cards, 1)
	assert.Equal(t, p.now(), f.cards[0].Due)
	require.NotNil(t, f.sessions[quiz.ID])
	assert.Equal(t, 1, f.sessions[quiz.ID].TotalQuestions)
	assert.Equal(t, "Cells divide by mitosis.", f.summary)
	assert.Equal(t, []string{"Generating Study Pack"}, f.steps)
	require.Len(t, f.completed, 1)
	assert.Equal(t, "study_pack", f.completed[0].ResultType)
	assert.Equal(t, 2, f.completed[0].Count)
}

func TestPool_ProcessStudyPack_PartialPackStoresNothing(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "text")
	deck := &models.FlashcardDeck{ID: uuid.New(), DocumentID: doc.ID, Requested: 1}
	quiz := &models.Quiz{ID: uuid.New(), DocumentID: doc.ID, Requested: 1}
	f.decks[deck.ID] = deck
	f.quizzes[quiz.ID] = quiz
	f.flashcards = []models.Flashcard{{Question: "q", Answer: "a"}}
	p, _ := newTestPool(t, f)

	config, err := json.Marshal(models.StudyPackTargets{DeckID: deck.ID, QuizID: quiz.ID, SummaryID: uuid.New()})
	require.NoError(t, err)
	job := &models.Job{ID: uuid.New(), Type: models.JobStudyPackGeneration, ReferenceID: doc.ID, DocumentID: doc.ID, ConfigJSON: config}

	p.run(context.Background(), job, zap.NewNop())

	assert.Empty(t, f.cards)
	assert.Empty(t, f.sessions)
	assert.Empty(t, f.summary)
	assert.Equal(t, []string{"NO_VALID_RECORDS"}, f.jobErrors)
}

func TestPool_DocumentNotReadyIsNotRetried(t *testing.T) {
	f := newFakeBackend()
	doc := &models.Document{ID: uuid.New(), Status: models.DocumentPending}
	f.documents[doc.ID] = doc
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobSummaryGeneration, ReferenceID: uuid.New(), DocumentID: doc.ID, MaxRetries: 3}

	p.run(context.Background(), job, zap.NewNop())

	assert.Equal(t, []string{"DOCUMENT_NOT_READY"}, f.jobErrors)
	assert.Equal(t, []string{models.JobProcessing, models.JobFailed}, f.jobStatuses)
	require.Len(t, f.failed, 1)
	assert.Equal(t, "DOCUMENT_NOT_READY", f.failed[0].ErrorCode)
}

func TestPool_QuotaErrorIsNotRetried(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "text")
	f.genErr = &services.GenerationError{Kind: services.GenerationQuotaExceeded, Model: "m"}
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobSummaryGeneration, ReferenceID: uuid.New(), DocumentID: doc.ID}

	p.run(context.Background(), job, zap.NewNop())

	assert.Equal(t, []string{"GENERATION_QUOTA"}, f.jobErrors)
	assert.Equal(t, models.JobFailed, f.jobStatuses[len(f.jobStatuses)-1])
	require.Len(t, f.failed, 1)
}

func TestPool_TransportErrorIsRetried(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "text")
	f.genErr = &services.GenerationError{Kind: services.GenerationTransport, Model: "m"}
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobSummaryGeneration, ReferenceID: uuid.New(), DocumentID: doc.ID, MaxRetries: 3}

	p.run(context.Background(), job, zap.NewNop())

	assert.Equal(t, []string{"GENERATION_FAILED"}, f.jobErrors)
	assert.Equal(t, []string{models.JobProcessing, models.JobPending}, f.jobStatuses)
	assert.Empty(t, f.failed)
	assert.Equal(t, 1, job.RetryCount)
}

func TestPool_RetriesExhausted(t *testing.T) {
	f := newFakeBackend()
	doc := readyDocument(f, "text")
	f.genErr = &services.GenerationError{Kind: services.GenerationTransport, Model: "m"}
	p, _ := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobSummaryGeneration, ReferenceID: uuid.New(), DocumentID: doc.ID, RetryCount: 2, MaxRetries: 3}

	p.run(context.Background(), job, zap.NewNop())

	assert.Equal(t, models.JobFailed, f.jobStatuses[len(f.jobStatuses)-1])
	require.Len(t, f.failed, 1)
	assert.Equal(t, "GENERATION_FAILED", f.failed[0].ErrorCode)
}

func TestPool_ShutdownRequeuesJob(t *testing.T) {
	f := newFakeBackend()
	p, mock := newTestPool(t, f)
	job := &models.Job{ID: uuid.New(), Type: models.JobQuizGeneration, ReferenceID: uuid.New()}

	payload, err := json.Marshal(job)
	require.NoError(t, err)
	mock.ExpectLPush("queue:quiz-generation", string(payload)).SetVal(1)

	p.cancel()
	p.handleFailure(p.ctx, job, fmt.Errorf("generate: %w", context.Canceled), zap.NewNop())

	assert.Equal(t, []string{models.JobPending}, f.jobStatuses)
	assert.Empty(t, f.jobErrors)
	assert.Zero(t, job.RetryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantRetry bool
	}{
		{"extraction", &services.ExtractionError{Reason: "empty"}, "DOCUMENT_UNREADABLE", false},
		{"quota", &services.GenerationError{Kind: services.GenerationQuotaExceeded}, "GENERATION_QUOTA", false},
		{"transport", &services.GenerationError{Kind: services.GenerationTransport}, "GENERATION_FAILED", true},
		{"blocked", &services.GenerationError{Kind: services.GenerationBlocked}, "GENERATION_FAILED", false},
		{"no records", errNoValidRecords, "NO_VALID_RECORDS", false},
		{"not ready", fmt.Errorf("document x (status: pending): %w", errDocumentNotReady), "DOCUMENT_NOT_READY", false},
		{"missing row", fmt.Errorf("failed to get quiz: %w", pgx.ErrNoRows), "NOT_FOUND", false},
		{"canceled", context.Canceled, "CANCELED", false},
		{"infrastructure", errors.New("connection reset"), "JOB_FAILED", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, retry := classify(tc.err)
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantRetry, retry)
		})
	}
}

func TestResultType(t *testing.T) {
	assert.Equal(t, "summary", resultType(models.JobSummaryGeneration))
	assert.Equal(t, "quiz", resultType(models.JobQuizGeneration))
	assert.Equal(t, "flashcard_deck", resultType(models.JobFlashcardGeneration))
	assert.Equal(t, "document", resultType(models.JobDocumentProcessing))
	assert.Equal(t, "study_pack", resultType(models.JobStudyPackGeneration))
}
