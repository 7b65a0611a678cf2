// Package consumer drains auth events from Kafka into Loki and, optionally, Postgres.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"backoffice/portal/internal/logging"
	"backoffice/portal/internal/telemetry/domain"
)

// DefaultGroupID is used when KAFKA_GROUP_ID is empty.
const DefaultGroupID = "portal-events-worker"

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Pusher ships one raw event line to the log store.
type Pusher interface {
	PushEventJSON(ctx context.Context, raw []byte) error
}

// Saver persists a decoded event.
type Saver interface {
	Save(ctx context.Context, e *domain.AuthEvent) error
}

// Consumer forwards each message to its sinks and commits it once every sink has been tried.
// A failing sink is logged and the message is still committed; events are best effort.
type Consumer struct {
	reader      Reader
	pusher      Pusher
	saver       Saver
	logger      *slog.Logger
	sinkTimeout time.Duration
}

// New returns a Consumer. pusher or saver may be nil to skip that sink.
func New(reader Reader, pusher Pusher, saver Saver, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:      reader,
		pusher:      pusher,
		saver:       saver,
		logger:      logging.For(logger, "worker"),
		sinkTimeout: 10 * time.Second,
	}
}

// NewReader builds the group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	if groupID == "" {
		groupID = DefaultGroupID
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
}

// Run consumes until ctx is done. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.WarnContext(ctx, "kafka fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		c.Handle(ctx, msg.Value)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WarnContext(ctx, "kafka commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// Handle delivers one raw event to every configured sink concurrently and reports how many failed.
func (c *Consumer) Handle(ctx context.Context, raw []byte) int {
	sctx, cancel := context.WithTimeout(ctx, c.sinkTimeout)
	defer cancel()

	failed := make([]bool, 2)
	var g errgroup.Group
	if c.pusher != nil {
		g.Go(func() error {
			if err := c.pusher.PushEventJSON(sctx, raw); err != nil {
				failed[0] = true
				c.logger.WarnContext(ctx, "loki push failed", "error", err)
			}
			return nil
		})
	}
	if c.saver != nil {
		g.Go(func() error {
			var ev domain.AuthEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				failed[1] = true
				c.logger.WarnContext(ctx, "undecodable auth event", "error", err)
				return nil
			}
			if err := c.saver.Save(sctx, &ev); err != nil {
				failed[1] = true
				c.logger.WarnContext(ctx, "auth event save failed", "event_id", ev.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}
