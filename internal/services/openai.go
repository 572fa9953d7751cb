package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient is the Generator for OpenAI-compatible chat completion APIs.
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
	slots        requestSlots
	log          *zap.Logger
}

func NewOpenAIClient(apiKey, baseURL, defaultModel string, concurrentReqs int, log *zap.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
		slots:        newRequestSlots(concurrentReqs),
		log:          log,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt, modelID string) (string, error) {
	if modelID == "" {
		modelID = c.defaultModel
	}

	if err := c.slots.acquire(ctx); err != nil {
		return "", slotError(modelID, err)
	}
	defer c.slots.release()

	req := openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.3,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", translateOpenAIError(modelID, err)
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Kind: GenerationNoText, Model: modelID, Err: errors.New("llm returned no choices")}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", &GenerationError{Kind: GenerationBlocked, Model: modelID, Err: errors.New("response withheld by content filter")}
	}
	if choice.FinishReason != openai.FinishReasonStop {
		c.log.Warn("chat completion did not stop cleanly",
			zap.String("model", modelID),
			zap.String("finish_reason", string(choice.FinishReason)),
		)
	}

	return requireText(modelID, choice.Message.Content)
}

func translateOpenAIError(model string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &GenerationError{Kind: GenerationCanceled, Model: model, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &GenerationError{Kind: kindForStatus(apiErr.HTTPStatusCode), Model: model, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &GenerationError{Kind: kindForStatus(reqErr.HTTPStatusCode), Model: model, Err: err}
	}

	return &GenerationError{Kind: GenerationTransport, Model: model, Err: fmt.Errorf("chat completion: %w", err)}
}
