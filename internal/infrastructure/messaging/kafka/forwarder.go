package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/infrastructure/event"
	"go.uber.org/zap"
)

// Forwarder is a bus subscriber that republishes reading events to Kafka
type Forwarder struct {
	producer   sarama.SyncProducer
	serializer *event.EventSerializer
	topic      string
	logger     *zap.Logger
}

// NewForwarder creates a forwarder writing to topic
func NewForwarder(producer sarama.SyncProducer, serializer *event.EventSerializer, topic string, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		producer:   producer,
		serializer: serializer,
		topic:      topic,
		logger:     logger,
	}
}

// EventTypes returns the forwarded event types
func (f *Forwarder) EventTypes() []string {
	return []string{metering.EventTypeMeterReadingCreated}
}

// Handle sends the event keyed by meter so one meter stays on one partition
func (f *Forwarder) Handle(_ context.Context, evt shared.DomainEvent) error {
	reading, ok := evt.(*metering.MeterReadingCreatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", evt)
	}
	payload, err := f.serializer.Serialize(reading)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: f.topic,
		Key:   sarama.StringEncoder(reading.MeterID.String()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEventType), Value: []byte(reading.EventType())},
			{Key: []byte(headerEventID), Value: []byte(reading.EventID().String())},
		},
	}
	partition, offset, err := f.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to forward reading %s: %w", reading.ReadingID, err)
	}

	f.logger.Debug("reading forwarded",
		zap.String("meter_id", reading.MeterID.String()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close closes the producer
func (f *Forwarder) Close() error {
	return f.producer.Close()
}

var _ shared.EventHandler = (*Forwarder)(nil)
