package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jmehdipour/sms-relay/internal/model"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BroadcastPublisher writes settled broadcast tallies to a topic, keyed by broadcast id.
type BroadcastPublisher struct {
	w messageWriter
}

func NewBroadcastPublisher(brokers []string, topic string) *BroadcastPublisher {
	return &BroadcastPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (p *BroadcastPublisher) Publish(ctx context.Context, ev model.BroadcastEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal broadcast event: %w", err)
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.ID), Value: b}); err != nil {
		return fmt.Errorf("write broadcast event %s: %w", ev.ID, err)
	}
	return nil
}

func (p *BroadcastPublisher) Close() error { return p.w.Close() }
