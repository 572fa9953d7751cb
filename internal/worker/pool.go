package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studykit-backend/internal/database"
	"studykit-backend/internal/models"
	"studykit-backend/internal/services"
)

const jobLockTTL = 10 * time.Minute

var (
	errNoValidRecords   = errors.New("generator returned no valid records")
	errDocumentNotReady = errors.New("document is not ready")
)

type DocumentStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

type Extractor interface {
	Extract(data []byte) (*models.ExtractedDocument, error)
}

type Documents interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error
	SaveExtraction(ctx context.Context, id uuid.UUID, doc *models.ExtractedDocument, chunks []models.Chunk) error
}

type Decks interface {
	GetDeckByID(ctx context.Context, id uuid.UUID) (*models.FlashcardDeck, error)
	ReplaceCards(ctx context.Context, deckID uuid.UUID, cards []models.FlashcardCard) error
}

type Quizzes interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	SaveSession(ctx context.Context, id uuid.UUID, s *models.QuizSession) error
}

type Summaries interface {
	UpdateContent(ctx context.Context, id uuid.UUID, content string, wordCount int) error
}

type Jobs interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, code, errMsg string, retryCount int) error
}

// Study is the generation pipeline a worker drives.
type Study interface {
	GenerateFlashcards(ctx context.Context, text string, count int) ([]models.Flashcard, error)
	GenerateQuiz(ctx context.Context, text string, numQuestions int) ([]models.QuizQuestion, error)
	GenerateSummary(ctx context.Context, text string) (string, error)
	GenerateStudyPack(ctx context.Context, text string, opts services.StudyPackOptions) (*models.StudyPack, error)
}

type Events interface {
	Status(ctx context.Context, userID, jobID uuid.UUID, step int, stepName string)
	Completed(ctx context.Context, userID uuid.UUID, ev models.CompletedEvent)
	Failed(ctx context.Context, userID uuid.UUID, ev models.ErrorEvent)
}

// Deps bundles everything a worker touches.
type Deps struct {
	Store     DocumentStore
	Extractor Extractor
	Documents Documents
	Decks     Decks
	Quizzes   Quizzes
	Summaries Summaries
	Jobs      Jobs
	Study     Study
	Engine    *services.QuizEngine
	Scheduler *services.ReviewScheduler
	Events    Events

	ChunkSizeWords    int
	ChunkOverlapWords int
}

type Pool struct {
	redis       *redis.Client
	queue       *Queue
	deps        Deps
	workerCount int
	log         *zap.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(redisClient *redis.Client, deps Deps, workerCount int, log *zap.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		redis:       redisClient,
		queue:       NewQueue(redisClient),
		deps:        deps,
		workerCount: workerCount,
		log:         log,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (p *Pool) Start() {
	queues := make([]string, len(JobTypes))
	for i, t := range JobTypes {
		queues[i] = QueueName(t)
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i, queues)
	}

	p.log.Info("worker pool started", zap.Int("workers", p.workerCount))
}

// Stop cancels in-flight jobs and waits for every worker to return.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) worker(id int, queues []string) {
	defer p.wg.Done()
	log := p.log.With(zap.Int("worker", id))

	for {
		if p.ctx.Err() != nil {
			log.Info("worker shutting down")
			return
		}

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(p.ctx, 30*time.Second, queues...).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && p.ctx.Err() == nil {
				log.Warn("blpop failed", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Error("failed to parse job", zap.Error(err))
			continue
		}

		lock, ok, err := database.AcquireLock(p.ctx, p.redis, fmt.Sprintf("job_lock:%s", job.ID), uuid.NewString(), jobLockTTL)
		if err != nil || !ok {
			continue // Another worker has this job
		}

		p.run(p.ctx, &job, log)

		if err := lock.Release(context.Background()); err != nil {
			log.Warn("failed to release job lock", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	}
}

func (p *Pool) run(ctx context.Context, job *models.Job, log *zap.Logger) {
	log = log.With(zap.String("job_id", job.ID.String()), zap.String("type", job.Type))
	log.Info("processing job")

	p.deps.Jobs.UpdateStatus(ctx, job.ID, models.JobProcessing)

	count, err := p.process(ctx, job)
	if err != nil {
		p.handleFailure(ctx, job, err, log)
		return
	}
	p.handleSuccess(ctx, job, count, log)
}

// process runs one job and returns the number of artifacts it produced.
func (p *Pool) process(ctx context.Context, job *models.Job) (int, error) {
	switch job.Type {
	case models.JobDocumentProcessing:
		return p.processDocument(ctx, job)
	case models.JobFlashcardGeneration:
		return p.processFlashcards(ctx, job)
	case models.JobQuizGeneration:
		return p.processQuiz(ctx, job)
	case models.JobSummaryGeneration:
		return p.processSummary(ctx, job)
	case models.JobStudyPackGeneration:
		return p.processStudyPack(ctx, job)
	default:
		return 0, fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Pool) processDocument(ctx context.Context, job *models.Job) (int, error) {
	d := p.deps
	doc, err := d.Documents.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return 0, fmt.Errorf("failed to get document: %w", err)
	}

	d.Documents.UpdateStatus(ctx, doc.ID, models.DocumentProcessing, nil)
	d.Events.Status(ctx, job.UserID, job.ID, 1, "Extracting text")

	data, err := d.Store.Load(ctx, doc.StorageKey)
	if err != nil {
		return 0, fmt.Errorf("failed to load document bytes: %w", err)
	}

	extracted, err := d.Extractor.Extract(data)
	if err != nil {
		return 0, err
	}
	if !extracted.HasText() {
		return 0, &services.ExtractionError{Reason: "document has no extractable text"}
	}

	d.Events.Status(ctx, job.UserID, job.ID, 2, "Splitting into sections")
	chunks := services.ChunkText(extracted.Text, d.ChunkSizeWords, d.ChunkOverlapWords)

	if err := d.Documents.SaveExtraction(ctx, doc.ID, extracted, chunks); err != nil {
		return 0, fmt.Errorf("failed to save extraction: %w", err)
	}
	return len(chunks), nil
}

// documentText returns the extracted text of a processed document.
func (p *Pool) documentText(ctx context.Context, documentID uuid.UUID) (string, error) {
	doc, err := p.deps.Documents.GetByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to get document: %w", err)
	}
	if doc.Status != models.DocumentReady {
		return "", fmt.Errorf("document %s (status: %s): %w", doc.ID, doc.Status, errDocumentNotReady)
	}
	if doc.ExtractedText == nil || strings.TrimSpace(*doc.ExtractedText) == "" {
		return "", &services.ExtractionError{Reason: "document has no extractable text"}
	}
	return *doc.ExtractedText, nil
}

func (p *Pool) processFlashcards(ctx context.Context, job *models.Job) (int, error) {
	d := p.deps
	deck, err := d.Decks.GetDeckByID(ctx, job.ReferenceID)
	if err != nil {
		return 0, fmt.Errorf("failed to get flashcard deck: %w", err)
	}

	text, err := p.documentText(ctx, deck.DocumentID)
	if err != nil {
		return 0, err
	}

	d.Events.Status(ctx, job.UserID, job.ID, 2, "Creating Flashcards")
	generated, err := d.Study.GenerateFlashcards(ctx, text, deck.Requested)
	if err != nil {
		return 0, err
	}
	if len(generated) == 0 {
		return 0, errNoValidRecords
	}

	now := p.now()
	cards := make([]models.FlashcardCard, len(generated))
	for i, f := range generated {
		cards[i].Flashcard = f
		d.Scheduler.NewCardState(&cards[i], now)
	}

	if err := d.Decks.ReplaceCards(ctx, deck.ID, cards); err != nil {
		return 0, fmt.Errorf("failed to save flashcards: %w", err)
	}
	return len(cards), nil
}

func (p *Pool) processQuiz(ctx context.Context, job *models.Job) (int, error) {
	d := p.deps
	quiz, err := d.Quizzes.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return 0, fmt.Errorf("failed to get quiz: %w", err)
	}

	text, err := p.documentText(ctx, quiz.DocumentID)
	if err != nil {
		return 0, err
	}

	d.Events.Status(ctx, job.UserID, job.ID, 2, "Generating Questions")
	questions, err := d.Study.GenerateQuiz(ctx, text, quiz.Requested)
	if err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return 0, errNoValidRecords
	}

	session := d.Engine.Create(questions)
	if err := d.Quizzes.SaveSession(ctx, quiz.ID, session); err != nil {
		return 0, fmt.Errorf("failed to save quiz: %w", err)
	}
	return session.TotalQuestions, nil
}

func (p *Pool) processSummary(ctx context.Context, job *models.Job) (int, error) {
	d := p.deps
	text, err := p.documentText(ctx, job.DocumentID)
	if err != nil {
		return 0, err
	}

	d.Events.Status(ctx, job.UserID, job.ID, 2, "Generating Summary")
	summary, err := d.Study.GenerateSummary(ctx, text)
	if err != nil {
		return 0, err
	}

	wordCount := len(strings.Fields(summary))
	if err := d.Summaries.UpdateContent(ctx, job.ReferenceID, summary, wordCount); err != nil {
		return 0, fmt.Errorf("failed to save summary: %w", err)
	}
	return wordCount, nil
}

// processStudyPack generates flashcards, quiz and summary in one run and
// stores nothing unless all three succeed.
func (p *Pool) processStudyPack(ctx context.Context, job *models.Job) (int, error) {
	d := p.deps
	var targets models.StudyPackTargets
	if err := json.Unmarshal(job.ConfigJSON, &targets); err != nil {
		return 0, fmt.Errorf("invalid study pack config: %w", err)
	}

	deck, err := d.Decks.GetDeckByID(ctx, targets.DeckID)
	if err != nil {
		return 0, fmt.Errorf("failed to get flashcard deck: %w", err)
	}
	quiz, err := d.Quizzes.GetByID(ctx, targets.QuizID)
	if err != nil {
		return 0, fmt.Errorf("failed to get quiz: %w", err)
	}

	text, err := p.documentText(ctx, job.DocumentID)
	if err != nil {
		return 0, err
	}

	d.Events.Status(ctx, job.UserID, job.ID, 2, "Generating Study Pack")
	pack, err := d.Study.GenerateStudyPack(ctx, text, services.StudyPackOptions{
		Flashcards: deck.Requested,
		Questions:  quiz.Requested,
	})
	if err != nil {
		return 0, err
	}
	if len(pack.Flashcards) == 0 || len(pack.Questions) == 0 {
		return 0, errNoValidRecords
	}

	now := p.now()
	cards := make([]models.FlashcardCard, len(pack.Flashcards))
	for i, f := range pack.Flashcards {
		cards[i].Flashcard = f
		d.Scheduler.NewCardState(&cards[i], now)
	}
	if err := d.Decks.ReplaceCards(ctx, deck.ID, cards); err != nil {
		return 0, fmt.Errorf("failed to save flashcards: %w", err)
	}

	session := d.Engine.Create(pack.Questions)
	if err := d.Quizzes.SaveSession(ctx, quiz.ID, session); err != nil {
		return 0, fmt.Errorf("failed to save quiz: %w", err)
	}

	if err := d.Summaries.UpdateContent(ctx, targets.SummaryID, pack.Summary, len(strings.Fields(pack.Summary))); err != nil {
		return 0, fmt.Errorf("failed to save summary: %w", err)
	}
	return len(cards) + session.TotalQuestions, nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, count int, log *zap.Logger) {
	p.deps.Jobs.UpdateStatus(ctx, job.ID, models.JobCompleted)

	p.deps.Events.Completed(ctx, job.UserID, models.CompletedEvent{
		JobID:      job.ID,
		ResultID:   job.ReferenceID,
		ResultType: resultType(job.Type),
		Count:      count,
	})

	log.Info("job completed", zap.Int("count", count))
}

// classify maps a job error to its stored error code and whether another
// attempt could succeed. Only transport failures and unclassified
// infrastructure errors are retried.
func classify(err error) (code string, retry bool) {
	var extractErr *services.ExtractionError
	var genErr *services.GenerationError
	switch {
	case errors.As(err, &extractErr):
		return "DOCUMENT_UNREADABLE", false
	case errors.As(err, &genErr):
		if genErr.Kind == services.GenerationQuotaExceeded {
			return "GENERATION_QUOTA", false
		}
		return "GENERATION_FAILED", genErr.Retryable()
	case errors.Is(err, errNoValidRecords):
		return "NO_VALID_RECORDS", false
	case errors.Is(err, errDocumentNotReady):
		return "DOCUMENT_NOT_READY", false
	case errors.Is(err, pgx.ErrNoRows):
		return "NOT_FOUND", false
	case errors.Is(err, context.Canceled):
		return "CANCELED", false
	default:
		return "JOB_FAILED", true
	}
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error, log *zap.Logger) {
	// Store against a fresh context: ctx may be the one that was canceled.
	bg := context.Background()

	// Interrupted by shutdown: hand the job back untouched.
	if errors.Is(err, context.Canceled) && p.ctx.Err() != nil {
		log.Info("job interrupted by shutdown, requeueing")
		p.deps.Jobs.UpdateStatus(bg, job.ID, models.JobPending)
		if err := p.queue.Enqueue(bg, job); err != nil {
			log.Error("failed to requeue job", zap.Error(err))
		}
		return
	}

	job.RetryCount++
	errMsg := err.Error()
	code, retry := classify(err)

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if retry && job.RetryCount < maxRetries {
		log.Warn("job failed, retrying",
			zap.Int("attempt", job.RetryCount),
			zap.String("code", code),
			zap.Error(err),
		)
		p.deps.Jobs.UpdateStatus(bg, job.ID, models.JobPending)
		p.deps.Jobs.UpdateError(bg, job.ID, code, errMsg, job.RetryCount)

		retryJob := *job
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			if err := p.queue.Enqueue(context.Background(), &retryJob); err != nil {
				p.log.Error("failed to requeue job", zap.String("job_id", retryJob.ID.String()), zap.Error(err))
			}
		})
		return
	}

	log.Error("job failed permanently", zap.String("code", code), zap.Error(err))
	p.deps.Jobs.UpdateStatus(bg, job.ID, models.JobFailed)
	p.deps.Jobs.UpdateError(bg, job.ID, code, errMsg, job.RetryCount)
	if job.Type == models.JobDocumentProcessing {
		p.deps.Documents.UpdateStatus(bg, job.ReferenceID, models.DocumentFailed, &errMsg)
	}

	p.deps.Events.Failed(bg, job.UserID, models.ErrorEvent{
		JobID:        job.ID,
		ErrorCode:    code,
		ErrorMessage: errMsg,
	})
}

func resultType(jobType string) string {
	switch jobType {
	case models.JobSummaryGeneration:
		return "summary"
	case models.JobQuizGeneration:
		return "quiz"
	case models.JobFlashcardGeneration:
		return "flashcard_deck"
	case models.JobStudyPackGeneration:
		return "study_pack"
	default:
		return "document"
	}
}
