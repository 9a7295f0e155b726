package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

func turn(q string) domain.ConversationTurn {
	return domain.ConversationTurn{UserQuery: q, AIResponse: "answer to " + q, Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func TestStoreAppendAndRecentTurns(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewStore(client, nil)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3"} {
		if err := store.AppendTurn(ctx, "s1", turn(q), time.Hour); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	recent, err := store.RecentTurns(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(recent) != 2 || recent[0].UserQuery != "q2" || recent[1].UserQuery != "q3" {
		t.Fatalf("unexpected recent turns %+v", recent)
	}
	if !recent[1].Timestamp.Equal(turn("q3").Timestamp) {
		t.Fatalf("timestamp not preserved: %v", recent[1].Timestamp)
	}

	all, err := store.RecentTurns(ctx, "s1", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all 3 turns, got %d (%v)", len(all), err)
	}

	if ttl := mr.TTL(turnsPrefix + "s1"); ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}
}

func TestStoreSkipsCorruptTurns(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewStore(client, nil)
	ctx := context.Background()

	_ = store.AppendTurn(ctx, "s1", turn("q1"), time.Hour)
	if _, err := mr.Push(turnsPrefix+"s1", "{not json"); err != nil {
		t.Fatalf("push corrupt item: %v", err)
	}

	turns, err := store.RecentTurns(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected corrupt turn skipped, got %d", len(turns))
	}
}

func TestStoreReplaceTurns(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewStore(client, nil)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3"} {
		_ = store.AppendTurn(ctx, "s1", turn(q), time.Hour)
	}
	if err := store.ReplaceTurns(ctx, "s1", []domain.ConversationTurn{turn("q3")}, time.Hour); err != nil {
		t.Fatalf("ReplaceTurns() error = %v", err)
	}

	turns, _ := store.RecentTurns(ctx, "s1", 0)
	if len(turns) != 1 || turns[0].UserQuery != "q3" {
		t.Fatalf("unexpected turns after replace %+v", turns)
	}

	if err := store.ReplaceTurns(ctx, "s1", nil, time.Hour); err != nil {
		t.Fatalf("ReplaceTurns(nil) error = %v", err)
	}
	turns, _ = store.RecentTurns(ctx, "s1", 0)
	if len(turns) != 0 {
		t.Fatalf("expected empty list, got %+v", turns)
	}
}

func TestStoreSummaryRoundTripAndClear(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewStore(client, nil)
	ctx := context.Background()

	missing, err := store.Summary(ctx, "s1")
	if err != nil || missing != nil {
		t.Fatalf("expected no summary, got %+v (%v)", missing, err)
	}

	summary := domain.ConversationSummary{SummaryText: "Revenue talk.", TurnCount: 3, TimestampRange: "2024-05-01 to 2024-05-01", Type: domain.SummaryRecordType}
	if err := store.SaveSummary(ctx, "s1", summary, 2*time.Hour); err != nil {
		t.Fatalf("SaveSummary() error = %v", err)
	}
	got, err := store.Summary(ctx, "s1")
	if err != nil || got == nil || *got != summary {
		t.Fatalf("unexpected summary %+v (%v)", got, err)
	}
	if ttl := mr.TTL(summaryPrefix + "s1"); ttl != 2*time.Hour {
		t.Fatalf("expected summary ttl 2h, got %v", ttl)
	}

	_ = store.AppendTurn(ctx, "s1", turn("q1"), time.Hour)
	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if mr.Exists(turnsPrefix+"s1") || mr.Exists(summaryPrefix+"s1") {
		t.Fatalf("expected both keys removed")
	}
}

func TestStoreCorruptSummary(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	store := NewStore(client, nil)

	if err := mr.Set(summaryPrefix+"s1", "not-json"); err != nil {
		t.Fatalf("seed corrupt summary: %v", err)
	}
	_, err := store.Summary(context.Background(), "s1")
	if !errors.Is(err, domain.ErrCorruptRecord) {
		t.Fatalf("expected corrupt record error, got %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewStore(client, nil)
	mr.Close()

	_, err = store.RecentTurns(context.Background(), "s1", 0)
	if !errors.Is(err, domain.ErrSessionStore) {
		t.Fatalf("expected session store error, got %v", err)
	}
}

func TestNewClientParsesURL(t *testing.T) {
	client, err := NewClient("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()
	if client.Options().DB != 2 {
		t.Fatalf("expected db 2, got %d", client.Options().DB)
	}

	if _, err := NewClient("://bad"); err == nil {
		t.Fatalf("expected parse error")
	}
}
