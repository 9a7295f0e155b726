package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/filing-assistant/internal/infrastructure/resilience"
)

var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	return resilience.Classify(err, func(err error) bool {
		for _, transient := range transientNATSErrors {
			if errors.Is(err, transient) {
				return true
			}
		}
		return false
	})
}

func wrapTemporaryIfNeeded(err error) error {
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}
