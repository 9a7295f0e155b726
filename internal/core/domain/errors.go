package domain

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Adapters wrap causes with WrapError and callers branch on
// IsKind, never on message text.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")
	ErrCorruptRecord    = errors.New("corrupt record")
	ErrSessionStore     = errors.New("session store unavailable")
)

var errorKinds = []error{
	ErrInvalidInput,
	ErrDocumentNotFound,
	ErrSessionStore,
	ErrCorruptRecord,
	ErrTemporary,
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf returns the first sentinel kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
