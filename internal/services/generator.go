package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Generator sends one prompt to an LLM backend and returns its raw text.
// Implementations make a single attempt and report every failure as a
// *GenerationError.
type Generator interface {
	Generate(ctx context.Context, prompt, modelID string) (string, error)
}

// slotWaitTimeout bounds how long a call queues for a free request slot.
const slotWaitTimeout = 5 * time.Minute

// requestSlots is a token bucket capping in-flight backend calls.
type requestSlots chan struct{}

func newRequestSlots(n int) requestSlots {
	if n <= 0 {
		n = 1
	}
	slots := make(requestSlots, n)
	for i := 0; i < n; i++ {
		slots <- struct{}{}
	}
	return slots
}

// acquire blocks until a slot is available
func (s requestSlots) acquire(ctx context.Context) error {
	select {
	case <-s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(slotWaitTimeout):
		return fmt.Errorf("timeout waiting for request slot")
	}
}

func (s requestSlots) release() {
	s <- struct{}{}
}

// slotError converts a failed acquire into a GenerationError.
func slotError(model string, err error) error {
	kind := GenerationTransport
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = GenerationCanceled
	}
	return &GenerationError{Kind: kind, Model: model, Err: err}
}

// kindForStatus maps an HTTP status returned by a backend to an error kind.
func kindForStatus(code int) GenerationErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return GenerationQuotaExceeded
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return GenerationAuth
	case code == http.StatusBadRequest || code == http.StatusNotFound ||
		code == http.StatusUnprocessableEntity || code == http.StatusRequestEntityTooLarge:
		return GenerationInvalidRequest
	default:
		return GenerationTransport
	}
}

// requireText rejects empty backend output.
func requireText(model, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Kind: GenerationNoText, Model: model, Err: errors.New("backend returned no text")}
	}
	return text, nil
}
