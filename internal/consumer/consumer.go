package consumer

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/expense-metrics/internal/debounce"
	"github.com/Checker-Finance/expense-metrics/internal/metrics"
	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// Consumer subscribes to record created/updated events and feeds them into
// the debounce gate. Malformed messages are counted and dropped; the
// subscription never dies over a bad payload.
type Consumer struct {
	logger *zap.Logger
	nc     *nats.Conn
	gate   *debounce.Gate
	sub    *nats.Subscription
}

// New constructs a record-event consumer.
func New(logger *zap.Logger, nc *nats.Conn, gate *debounce.Gate) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{logger: logger, nc: nc, gate: gate}
}

// Start opens a queue subscription so multiple service instances share the
// event stream.
func (c *Consumer) Start(ctx context.Context, subject, queue string) error {
	sub, err := c.nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	c.sub = sub
	c.logger.Info("consumer.started",
		zap.String("subject", subject),
		zap.String("queue", queue))
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	var env model.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		metrics.IncConsumerMessage("malformed")
		c.logger.Warn("consumer.bad_envelope", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	var ev model.RecordEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		metrics.IncConsumerMessage("malformed")
		c.logger.Warn("consumer.bad_payload",
			zap.String("subject", msg.Subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		return
	}

	if err := c.gate.Trigger(ctx, ev.AccountID, ev.TransactionDate); err != nil {
		metrics.IncConsumerMessage("error")
		c.logger.Warn("consumer.trigger_failed",
			zap.Int64("account_id", ev.AccountID),
			zap.String("record_id", ev.RecordID),
			zap.Error(err))
		return
	}

	metrics.IncConsumerMessage("ok")
}

// Stop drains the subscription.
func (c *Consumer) Stop() {
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			c.logger.Warn("consumer.drain_failed", zap.Error(err))
		}
	}
}
