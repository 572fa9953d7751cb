package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

// GeminiClient is the Generator backed by the Gemini API.
type GeminiClient struct {
	client       *genai.Client
	defaultModel string
	slots        requestSlots
	log          *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, defaultModel string, concurrentReqs int, log *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:       client,
		defaultModel: defaultModel,
		slots:        newRequestSlots(concurrentReqs),
		log:          log,
	}, nil
}

func (c *GeminiClient) Close() {
	c.client.Close()
}

// Generate makes one GenerateContent call. Each call builds its own model
// handle so concurrent requests share no mutable state.
func (c *GeminiClient) Generate(ctx context.Context, prompt, modelID string) (string, error) {
	if modelID == "" {
		modelID = c.defaultModel
	}

	if err := c.slots.acquire(ctx); err != nil {
		return "", slotError(modelID, err)
	}
	defer c.slots.release()

	model := c.client.GenerativeModel(modelID)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", translateGeminiError(modelID, err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			c.log.Warn("gemini candidate did not stop cleanly",
				zap.Int("candidate", i),
				zap.String("finish_reason", cand.FinishReason.String()),
				zap.Int32("tokens", cand.TokenCount),
			)
		}
	}

	return requireText(modelID, extractText(resp))
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// translateGeminiError classifies a genai error by its gRPC/HTTP status.
func translateGeminiError(model string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &GenerationError{Kind: GenerationCanceled, Model: model, Err: err}
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &GenerationError{Kind: GenerationBlocked, Model: model, Err: err}
	}

	if ae, ok := apierror.FromError(err); ok {
		if st := ae.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.ResourceExhausted:
				return &GenerationError{Kind: GenerationQuotaExceeded, Model: model, Err: err}
			case codes.Unauthenticated, codes.PermissionDenied:
				return &GenerationError{Kind: GenerationAuth, Model: model, Err: err}
			case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
				return &GenerationError{Kind: GenerationInvalidRequest, Model: model, Err: err}
			case codes.Canceled, codes.DeadlineExceeded:
				return &GenerationError{Kind: GenerationCanceled, Model: model, Err: err}
			}
		}
		if code := ae.HTTPCode(); code > 0 {
			return &GenerationError{Kind: kindForStatus(code), Model: model, Err: err}
		}
	}

	return &GenerationError{Kind: GenerationTransport, Model: model, Err: err}
}
