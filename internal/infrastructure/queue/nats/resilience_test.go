package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"timeout", fmt.Errorf("nats publish: %w", nats.ErrTimeout), true, true},
		{"closed", nats.ErrConnectionClosed, true, true},
		{"canceled", context.Canceled, false, false},
		{"breaker open", gobreaker.ErrOpenState, true, true},
		{"payload", nats.ErrMaxPayload, false, true},
	}
	for _, tc := range cases {
		got := classifyNATSError(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
			t.Fatalf("%s: classification = %+v", tc.name, got)
		}
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded(nats.ErrNoServers)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	if !errors.Is(err, nats.ErrNoServers) {
		t.Fatalf("expected original cause to be preserved, got %v", err)
	}

	permanent := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded(permanent); got != permanent {
		t.Fatalf("expected permanent error unchanged, got %v", got)
	}
}

func TestPublishRejectsEmptyFilingID(t *testing.T) {
	q := &Queue{}
	err := q.PublishDocumentIngested(context.Background(), "")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPublishedAtMissingWithoutStamp(t *testing.T) {
	if _, ok := PublishedAt(context.Background()); ok {
		t.Fatalf("expected no publish time on a bare context")
	}

	stamped := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.WithValue(context.Background(), publishedAtKey{}, stamped)
	got, ok := PublishedAt(ctx)
	if !ok || !got.Equal(stamped) {
		t.Fatalf("expected %v, got %v (ok=%v)", stamped, got, ok)
	}
}

func TestFilingMessageRoundTripsPublishTime(t *testing.T) {
	published := time.Date(2026, 3, 1, 12, 0, 0, 500, time.FixedZone("EST", -5*3600))
	msg := newFilingMessage("filings.uploaded", "f-42", published)

	if msg.Subject != "filings.uploaded" || string(msg.Data) != "f-42" {
		t.Fatalf("unexpected message %+v", msg)
	}
	got, ok := PublishedAt(handlerContext(context.Background(), msg))
	if !ok || !got.Equal(published) {
		t.Fatalf("expected %v, got %v (ok=%v)", published, got, ok)
	}
}

func TestHandlerContextIgnoresUnstampedMessages(t *testing.T) {
	bare := &nats.Msg{Subject: "filings.uploaded", Data: []byte("f-1")}
	if _, ok := PublishedAt(handlerContext(context.Background(), bare)); ok {
		t.Fatalf("expected no publish time without header")
	}

	garbled := nats.NewMsg("filings.uploaded")
	garbled.Header.Set(publishedAtHeader, "yesterday")
	if _, ok := PublishedAt(handlerContext(context.Background(), garbled)); ok {
		t.Fatalf("expected unparsable header to be ignored")
	}
}
