package workorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/event"
)

// ReaderConfig configures the completion topic consumer.
type ReaderConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
	// RetryInterval is the first delay before a failed completion is
	// applied again. Delays double up to maxRetryInterval.
	RetryInterval time.Duration
}

const maxRetryInterval = 30 * time.Second

// CompletionHandler applies a work_order_completed event. It returns nil
// once the completion is applied or can never apply.
// *eventbus.CompletionConsumer satisfies it.
type CompletionHandler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CompletionReader consumes work order completion messages from Kafka and
// applies them through a CompletionHandler. An offset is committed only
// after its completion has been applied.
type CompletionReader struct {
	cfg     ReaderConfig
	reader  messageReader
	handler CompletionHandler
	log     *zap.Logger
}

// NewCompletionReader validates cfg and opens a consumer group reader.
func NewCompletionReader(cfg ReaderConfig, h CompletionHandler, log *zap.Logger) (*CompletionReader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("completion topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newCompletionReader(cfg, r, h, log), nil
}

func newCompletionReader(cfg ReaderConfig, r messageReader, h CompletionHandler, log *zap.Logger) *CompletionReader {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	return &CompletionReader{cfg: cfg, reader: r, handler: h, log: log}
}

// Close shuts down the underlying Kafka reader.
func (c *CompletionReader) Close() error {
	return c.reader.Close()
}

// Run consumes until ctx is cancelled or the reader is closed. Undecodable
// messages are logged and committed so they never block the partition. A
// completion that fails to apply is retried with backoff until it succeeds
// or ctx ends; its offset stays uncommitted in the latter case.
func (c *CompletionReader) Run(ctx context.Context) error {
	c.log.Info("completion reader started",
		zap.String("topic", c.cfg.Topic),
		zap.String("group", c.cfg.GroupID),
		zap.Strings("brokers", c.cfg.Brokers))
	defer c.log.Info("completion reader stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			c.log.Error("completion reader fetch failed", zap.Error(err))
			continue
		}

		p, err := decodeCompletion(msg.Value)
		if err != nil {
			c.log.Warn("completion reader: skipping message",
				zap.Int64("offset", msg.Offset), zap.Error(err))
		} else if err := c.apply(ctx, msg, p); err != nil {
			return err
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("completion reader commit failed", zap.Error(err))
		}
		commitCancel()
	}
}

func (c *CompletionReader) apply(ctx context.Context, msg kafka.Message, p event.WorkOrderCompletedPayload) error {
	evt := event.NewWorkOrderCompleted(p)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInterval
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.RetryNotify(func() error {
		return c.handler.HandleEvent(ctx, evt)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		c.log.Warn("completion reader: applying completion failed; retrying",
			zap.String("work_order_id", p.WorkOrderID),
			zap.Int64("offset", msg.Offset),
			zap.Duration("retry_in", next),
			zap.Error(err))
	})
}

// decodeCompletion parses {"work_order_id": "...", "completed_at": "RFC3339"}.
// A missing completed_at is stamped with the receive time.
func decodeCompletion(raw []byte) (event.WorkOrderCompletedPayload, error) {
	var p event.WorkOrderCompletedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode completion: %w", err)
	}
	p.WorkOrderID = strings.TrimSpace(p.WorkOrderID)
	if p.WorkOrderID == "" {
		return p, errors.New("work_order_id missing or empty")
	}
	if p.CompletedAt.IsZero() {
		p.CompletedAt = time.Now().UTC()
	}
	return p, nil
}
