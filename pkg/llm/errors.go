package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// failureClass is the coarse cause of a backend failure, derived from the
// error text the way provider SDKs surface it.
type failureClass int

const (
	failureUnknown failureClass = iota
	failureAuth
	failureModelMissing
	failureEndpointMissing
	failureTransient
)

func classify(err error) (failureClass, string) {
	errStr := err.Error()
	lower := strings.ToLower(errStr)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return failureTransient, "request timeout"
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "authentication"):
		return failureAuth, "authentication failed"
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return failureModelMissing, "model not found"
	case strings.Contains(errStr, "404"):
		return failureEndpointMissing, "endpoint not found"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") || strings.HasSuffix(lower, "eof"):
		return failureTransient, "connection failed"
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return failureTransient, "request timeout"
	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "overloaded"):
		return failureTransient, "rate limited"
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(lower, "cuda error") || strings.Contains(lower, "out of memory"):
		return failureTransient, "server error"
	}
	return failureUnknown, "backend error"
}

// ClassifyCompletionError maps a completion client error to the taxonomy.
// Transport, rate-limit and server failures are BackendUnavailable (retried);
// bad credentials and unknown models are Configuration (terminal).
// Unrecognized failures are treated as unavailability.
func ClassifyCompletionError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	class, msg := classify(err)
	switch class {
	case failureAuth, failureModelMissing, failureEndpointMissing:
		return &apperrors.Error{
			Kind:    apperrors.KindConfiguration,
			Message: fmt.Sprintf("completion backend rejected request for model %s: %s", model, msg),
			Cause:   err,
		}
	default:
		return apperrors.BackendUnavailable(fmt.Sprintf("completion backend unavailable (model %s): %s", model, msg), err)
	}
}

// ClassifyEmbeddingError maps an embedding client error to an EmbeddingError.
// An unreachable backend and a model that is not pulled yet are both
// transient from the pipeline's point of view.
func ClassifyEmbeddingError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	_, msg := classify(err)
	return apperrors.Embedding(fmt.Sprintf("embedding backend failed (model %s): %s", model, msg), err)
}
