// Package publish mirrors the tick stream onto a Kafka topic so external
// consumers can follow the feed without holding a websocket connection.
package publish

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/feedsim/feedsim/pkg/market"
)

type Kafka struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewKafka builds an async producer. Writes never block the tick loop;
// delivery failures are logged via the completion callback.
func NewKafka(brokers []string, topic string, log *zap.SugaredLogger) *Kafka {
	k := &Kafka{log: log}
	k.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				k.log.Warnw("tick_publish_failed", "count", len(messages), "err", err)
			}
		},
	}
	log.Infow("kafka_publisher_started", "brokers", brokers, "topic", topic)
	return k
}

// Publish enqueues one tick, keyed by symbol so per-symbol ordering holds
// within a partition.
func (k *Kafka) Publish(tick market.Tick) {
	data, err := json.Marshal(tick)
	if err != nil {
		k.log.Warnw("tick_marshal_failed", "symbol", tick.Symbol, "err", err)
		return
	}
	err = k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(tick.Symbol),
		Value: data,
	})
	if err != nil {
		k.log.Warnw("tick_publish_failed", "symbol", tick.Symbol, "err", err)
	}
}

func (k *Kafka) Close() error { return k.writer.Close() }
