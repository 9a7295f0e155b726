package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/core/ports"
)

var _ ports.SessionStore = (*Store)(nil)

const (
	turnsPrefix   = "chat_session_v2:"
	summaryPrefix = "chat_summary_v2:"
)

// Store keeps each session as a Redis list of JSON turns plus one JSON summary
// string. Both keys share the session TTL, refreshed on every write.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

func NewStore(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

// NewClient builds a go-redis client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn domain.ConversationTurn, ttl time.Duration) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := turnsPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.WrapError(domain.ErrSessionStore, "append turn", err)
	}
	return nil
}

func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, turnsPrefix+sessionID, start, -1).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrSessionStore, "read turns", err)
	}

	turns := make([]domain.ConversationTurn, 0, len(raw))
	for _, item := range raw {
		var turn domain.ConversationTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			s.logger.Warn("turn_record_corrupt", "session_id", sessionID, "error", err)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *Store) ReplaceTurns(ctx context.Context, sessionID string, turns []domain.ConversationTurn, ttl time.Duration) error {
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		values = append(values, data)
	}

	key := turnsPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.WrapError(domain.ErrSessionStore, "replace turns", err)
	}
	return nil
}

func (s *Store) Summary(ctx context.Context, sessionID string) (*domain.ConversationSummary, error) {
	data, err := s.client.Get(ctx, summaryPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrSessionStore, "read summary", err)
	}

	var summary domain.ConversationSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, domain.WrapError(domain.ErrCorruptRecord, "decode summary", err)
	}
	return &summary, nil
}

func (s *Store) SaveSummary(ctx context.Context, sessionID string, summary domain.ConversationSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := s.client.Set(ctx, summaryPrefix+sessionID, data, ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrSessionStore, "save summary", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, turnsPrefix+sessionID, summaryPrefix+sessionID).Err(); err != nil {
		return domain.WrapError(domain.ErrSessionStore, "clear session", err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
