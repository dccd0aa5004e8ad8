// Package kafka bridges reading events between service instances over Kafka.
// The forwarder moves committed MeterReadingCreated events from the local bus
// onto a topic keyed by meter, and the consumer group feeds them to the
// billing handler so one meter's readings are always billed by one worker.
package kafka

import (
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/utilitybill/backend/internal/infrastructure/config"
)

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
)

func parseRequiredAcks(v string) (sarama.RequiredAcks, error) {
	switch strings.ToLower(v) {
	case "none":
		return sarama.NoResponse, nil
	case "leader", "1":
		return sarama.WaitForLocal, nil
	case "", "all", "-1":
		return sarama.WaitForAll, nil
	default:
		return sarama.WaitForAll, fmt.Errorf("invalid kafka required_acks: %s", v)
	}
}

// NewProducerConfig returns the sarama settings for the reading forwarder
func NewProducerConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	acks, err := parseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = acks
	sc.Producer.Return.Successes = true
	sc.Producer.Retry.Max = 5
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	return sc, nil
}

// NewConsumerConfig returns the sarama settings for the billing consumer group
func NewConsumerConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	return sc
}
