package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

// Classify applies the rules every adapter shares and defers the rest to
// transient. Caller cancellation is neither retried nor counted against the
// breaker; an open circuit is always worth retrying later.
func Classify(err error, transient func(error) bool) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{}
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case transient != nil && transient(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{RecordFailure: true}
	}
}

// WrapTemporary tags err as domain.ErrTemporary when classifier deems it
// retryable, so the HTTP layer answers 503 instead of 500.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
