package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studykit-backend/internal/models"
)

const (
	DefaultFlashcardCount = 10
	DefaultQuestionCount  = 5
	MaxArtifactCount      = 50
)

// StudyService turns document text into study artifacts. Every method is a
// single prompt, one backend call and one parse; nothing is shared between
// calls except the injected collaborators.
type StudyService struct {
	gen           Generator
	selector      ChunkSelector
	modelID       string
	strictAnswers bool
	log           *zap.Logger
}

func NewStudyService(gen Generator, selector ChunkSelector, modelID string, strictAnswers bool, log *zap.Logger) *StudyService {
	if selector == nil {
		selector = SequentialSelector{}
	}
	return &StudyService{
		gen:           gen,
		selector:      selector,
		modelID:       modelID,
		strictAnswers: strictAnswers,
		log:           log,
	}
}

var errNoText = &ExtractionError{Reason: "document has no extractable text"}

// complete renders the prompt for kind and sends it to the backend.
func (s *StudyService) complete(ctx context.Context, kind PromptKind, in PromptInput) (string, error) {
	prompt, err := BuildPrompt(kind, in)
	if err != nil {
		return "", err
	}
	return s.gen.Generate(ctx, prompt, s.modelID)
}

func (s *StudyService) GenerateFlashcards(ctx context.Context, text string, count int) ([]models.Flashcard, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errNoText
	}
	count = clampCount(count, DefaultFlashcardCount)

	raw, err := s.complete(ctx, PromptFlashcards, PromptInput{Text: text, Count: count})
	if err != nil {
		return nil, err
	}

	cards := ParseFlashcards(raw, count)
	s.log.Info("flashcards generated",
		zap.Int("requested", count),
		zap.Int("parsed", len(cards)),
	)
	return cards, nil
}

func (s *StudyService) GenerateQuiz(ctx context.Context, text string, numQuestions int) ([]models.QuizQuestion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errNoText
	}
	numQuestions = clampCount(numQuestions, DefaultQuestionCount)

	raw, err := s.complete(ctx, PromptQuiz, PromptInput{Text: text, Count: numQuestions})
	if err != nil {
		return nil, err
	}

	questions := ParseQuiz(raw, numQuestions)
	parsed := len(questions)
	if s.strictAnswers {
		questions = ValidateQuizAnswers(questions)
	}
	s.log.Info("quiz generated",
		zap.Int("requested", numQuestions),
		zap.Int("parsed", parsed),
		zap.Int("valid", len(questions)),
	)
	return questions, nil
}

func (s *StudyService) GenerateSummary(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errNoText
	}

	raw, err := s.complete(ctx, PromptSummary, PromptInput{Text: text})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// Chat answers question from the chunks the selector picks within the chat
// context budget.
func (s *StudyService) Chat(ctx context.Context, question string, chunks []models.Chunk) (*models.ChatResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &ValidationError{Fields: map[string]string{"question": "is required"}}
	}
	if len(chunks) == 0 {
		return nil, errNoText
	}

	selected := s.selector.Select(question, chunks, ChatContextLimit)
	raw, err := s.complete(ctx, PromptChat, PromptInput{Question: question, Chunks: selected})
	if err != nil {
		return nil, err
	}

	return &models.ChatResponse{Answer: strings.TrimSpace(raw), Chunks: len(selected)}, nil
}

func (s *StudyService) ExplainConcept(ctx context.Context, concept, context string) (string, error) {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return "", &ValidationError{Fields: map[string]string{"concept": "is required"}}
	}

	raw, err := s.complete(ctx, PromptExplain, PromptInput{Concept: concept, Text: context})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// ExplainFromChunks explains concept using the chunks the selector ranks
// highest for it as context.
func (s *StudyService) ExplainFromChunks(ctx context.Context, concept string, chunks []models.Chunk) (string, error) {
	selected := s.selector.Select(concept, chunks, ExplainContextLimit)
	parts := make([]string, len(selected))
	for i, c := range selected {
		parts[i] = c.Content
	}
	return s.ExplainConcept(ctx, concept, strings.Join(parts, "\n\n"))
}

type StudyPackOptions struct {
	Flashcards int
	Questions  int
}

// GenerateStudyPack runs the flashcard, quiz and summary requests
// concurrently. The first failure cancels the others and no partial pack is
// returned.
func (s *StudyService) GenerateStudyPack(ctx context.Context, text string, opts StudyPackOptions) (*models.StudyPack, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errNoText
	}

	var pack models.StudyPack
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cards, err := s.GenerateFlashcards(ctx, text, opts.Flashcards)
		pack.Flashcards = cards
		return err
	})
	g.Go(func() error {
		questions, err := s.GenerateQuiz(ctx, text, opts.Questions)
		pack.Questions = questions
		return err
	})
	g.Go(func() error {
		summary, err := s.GenerateSummary(ctx, text)
		pack.Summary = summary
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &pack, nil
}

func clampCount(n, def int) int {
	if n <= 0 {
		return def
	}
	if n > MaxArtifactCount {
		return MaxArtifactCount
	}
	return n
}
