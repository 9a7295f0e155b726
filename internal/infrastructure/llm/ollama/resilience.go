package ollama

import (
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/filing-assistant/internal/infrastructure/resilience"
)

func classifyOllamaError(err error) resilience.ErrorClassification {
	return resilience.Classify(err, isTransientOllamaError)
}

// isTransientOllamaError treats overload and gateway statuses and network
// failures as retryable. Other statuses (bad model name, malformed prompt)
// will not improve on retry.
func isTransientOllamaError(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.WrapTemporary(operation, err, classifyOllamaError)
}
