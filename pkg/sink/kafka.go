// Package sink exports instrument events to external systems.
package sink

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchcore/pkg/cqrs"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every event it handles as an envelope, keyed by
// instrument so that one instrument's events stay in one partition.
type Kafka struct {
	writer messageWriter
	log    *zap.SugaredLogger
}

func NewKafka(brokers []string, topic string, log *zap.SugaredLogger) *Kafka {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warnw("kafka_write_failed", "topic", topic, "messages", len(msgs), "err", err)
			}
		},
	}
	return &Kafka{writer: w, log: log}
}

func (k *Kafka) Handle(ev cqrs.Event) {
	payload, err := cqrs.Marshal(ev)
	if err != nil {
		k.log.Errorw("kafka_encode_failed", "instrument", ev.Instrument(), "type", ev.Type(), "err", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.Instrument()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type())},
		},
	}
	if err := k.writer.WriteMessages(context.Background(), msg); err != nil {
		k.log.Warnw("kafka_enqueue_failed", "instrument", ev.Instrument(), "err", err)
	}
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
