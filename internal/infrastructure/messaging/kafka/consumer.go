package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/infrastructure/event"
	"github.com/utilitybill/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Consumer feeds reading events from a consumer group to a handler.
// Offsets are marked after the handler returns, error or not: the billing
// handler already absorbs gate skips, and a reading that failed for another
// reason is picked up by the next bulk run.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    shared.EventHandler
	serializer *event.EventSerializer
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewConsumer creates a consumer. maxPerSecond <= 0 disables throttling.
func NewConsumer(
	group sarama.ConsumerGroup,
	topic string,
	handler shared.EventHandler,
	serializer *event.EventSerializer,
	maxPerSecond float64,
	logger *zap.Logger,
) *Consumer {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if maxPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxPerSecond), 1)
	}
	return &Consumer{
		group:      group,
		topics:     []string{topic},
		handler:    handler,
		serializer: serializer,
		limiter:    limiter,
		logger:     logger,
	}
}

// Run consumes until ctx is cancelled, rejoining the group after each rebalance
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("kafka consumer error", zap.Error(err))
		}
	}()

	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the group
func (c *Consumer) Close() error {
	return c.group.Close()
}

// Setup is called at the start of a group session
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.Info("kafka session started",
		zap.String("member_id", session.MemberID()),
		zap.Int32("generation", session.GenerationID()),
	)
	return nil
}

// Cleanup is called at the end of a group session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles one partition's messages in order
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return nil
			}
			c.handle(ctx, msg)
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	log := c.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	eventType := header(msg, headerEventType)
	if eventType == "" {
		log.Warn("message without event type header dropped")
		return
	}
	evt, err := c.serializer.Deserialize(eventType, msg.Value)
	if err != nil {
		log.Error("undecodable message dropped", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "reading.consume",
		telemetry.WithSpanKind(trace.SpanKindConsumer),
		telemetry.WithAttribute(telemetry.SpanAttrEventType, eventType),
		telemetry.WithAttribute(telemetry.SpanAttrEventID, evt.EventID().String()),
	)
	defer span.End()

	if err := c.handler.Handle(ctx, evt); err != nil {
		telemetry.RecordError(span, err)
		log.Error("reading event handler failed",
			zap.String("event_id", evt.EventID().String()),
			zap.Error(err),
		)
	}
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)
