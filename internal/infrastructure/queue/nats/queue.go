package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/filing-assistant/internal/core/domain"
	"github.com/kirillkom/filing-assistant/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const (
	defaultQueueGroup  = "filing-indexers"
	publishedAtHeader  = "Filing-Published-At"
	drainFlushTimeout  = 5 * time.Second
	defaultConnTimeout = 2 * time.Second
)

// Queue carries "filing uploaded" events from the API to the indexing workers.
// Workers share a queue group, so each filing is indexed once.
type Queue struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func (o Options) natsOptions(logger *slog.Logger) []nats.Option {
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnTimeout
	}
	wait := o.ReconnectWait
	if wait <= 0 {
		wait = defaultConnTimeout
	}
	maxReconnects := o.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailed := o.RetryOnFailedConnect == nil || *o.RetryOnFailedConnect

	return []nats.Option{
		nats.Name("filing-assistant"),
		nats.Timeout(timeout),
		nats.ReconnectWait(wait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailed),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	}
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	group := strings.TrimSpace(options.QueueGroup)
	if group == "" {
		group = defaultQueueGroup
	}

	conn, err := nats.Connect(url, options.natsOptions(logger)...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		group:    group,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// newFilingMessage builds the event for one uploaded filing, stamped with the
// publish time so consumers can report queue lag.
func newFilingMessage(subject, filingID string, now time.Time) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = []byte(filingID)
	msg.Header.Set(publishedAtHeader, now.UTC().Format(time.RFC3339Nano))
	return msg
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, filingID string) error {
	if strings.TrimSpace(filingID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "nats publish", errors.New("empty filing id"))
	}

	publish := func(context.Context) error {
		if err := q.conn.PublishMsg(newFilingMessage(q.subject, filingID, time.Now())); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if q.executor == nil {
		return wrapTemporaryIfNeeded(publish(ctx))
	}
	return wrapTemporaryIfNeeded(q.executor.Execute(ctx, "nats.publish", publish, classifyNATSError))
}

type publishedAtKey struct{}

// PublishedAt reports when the message being handled was published, if the
// publisher stamped it.
func PublishedAt(ctx context.Context) (time.Time, bool) {
	ts, ok := ctx.Value(publishedAtKey{}).(time.Time)
	return ts, ok
}

func handlerContext(parent context.Context, msg *nats.Msg) context.Context {
	if msg.Header == nil {
		return parent
	}
	publishedAt, err := time.Parse(time.RFC3339Nano, msg.Header.Get(publishedAtHeader))
	if err != nil {
		return parent
	}
	return context.WithValue(parent, publishedAtKey{}, publishedAt)
}

// SubscribeDocumentIngested runs handler for every event until ctx is done,
// then drains the subscription so in-flight filings finish.
func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		filingID := string(msg.Data)
		if err := handler(handlerContext(ctx, msg), filingID); err != nil {
			q.logger.Error("filing_handler_failed", "filing_id", filingID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(drainFlushTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
