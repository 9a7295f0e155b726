package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	err := fmt.Errorf("append turn: %w", WrapError(ErrSessionStore, "rpush", cause))

	if !IsKind(err, ErrSessionStore) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause in chain: %v", err)
	}
	if KindOf(err) != ErrSessionStore {
		t.Fatalf("KindOf() = %v", KindOf(err))
	}
	if WrapError(ErrTemporary, "noop", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
	if KindOf(errors.New("plain")) != nil {
		t.Fatalf("expected no kind for plain error")
	}
}
