package services

import (
	"errors"
	"fmt"
)

// ExtractionError reports an unreadable document or one with no usable text.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "document extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// GenerationErrorKind classifies backend failures so callers can branch
// without matching on error strings.
type GenerationErrorKind string

const (
	GenerationNoText         GenerationErrorKind = "no_text"
	GenerationTransport      GenerationErrorKind = "transport"
	GenerationQuotaExceeded  GenerationErrorKind = "quota_exceeded"
	GenerationAuth           GenerationErrorKind = "auth"
	GenerationBlocked        GenerationErrorKind = "blocked"
	GenerationCanceled       GenerationErrorKind = "canceled"
	GenerationInvalidRequest GenerationErrorKind = "invalid_request"
)

// GenerationError is the only error type a Generator returns.
type GenerationError struct {
	Kind  GenerationErrorKind
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed (%s)", e.Kind)
	if e.Model != "" {
		msg += " model=" + e.Model
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Retryable reports whether a caller-side retry can plausibly succeed.
func (e *GenerationError) Retryable() bool {
	return e.Kind == GenerationTransport
}

// InvalidIndexError is returned when a quiz answer targets a question that
// does not exist.
type InvalidIndexError struct {
	Index int
	Total int
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("question index %d out of range [0, %d)", e.Index, e.Total)
}

// IsGenerationKind reports whether err carries a GenerationError of kind.
func IsGenerationKind(err error, kind GenerationErrorKind) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr) && genErr.Kind == kind
}

// Custom errors
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }
