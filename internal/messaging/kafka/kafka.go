package kafka

import (
	"context"
	"log/slog"
	"sync"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/flashmart/seckill/internal/messaging"
)

type broker struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafkaGo.Writer
}

// NewBroker creates a Kafka publisher and subscriber sharing one writer per
// topic.
func NewBroker(brokers []string) (messaging.Publisher, messaging.Subscriber, func() error) {
	b := &broker{
		brokers: brokers,
		writers: make(map[string]*kafkaGo.Writer),
	}
	return b, b, b.close
}

func (b *broker) writer(topic string) *kafkaGo.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.writers[topic]
	if !ok {
		w = &kafkaGo.Writer{
			Addr:     kafkaGo.TCP(b.brokers...),
			Topic:    topic,
			Balancer: &kafkaGo.LeastBytes{},
		}
		b.writers[topic] = w
	}
	return w
}

func (b *broker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return b.writer(topic).WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

// Consume reads messages until ctx is cancelled. Offsets are committed only
// after the handler succeeds, so a failed message is redelivered.
func (b *broker) Consume(ctx context.Context, topic, groupID string, handler func(ctx context.Context, payload []byte) error) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: b.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Consumer shutting down", "topic", topic)
				return
			}
			slog.Error("Error reading message", "topic", topic, "err", err)
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			slog.Error("Error handling message, leaving for redelivery", "topic", topic, "err", err)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("Error committing offset", "topic", topic, "err", err)
		}
	}
}

func (b *broker) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
