package crier

import (
	"context"
	"time"

	"github.com/pkruse/crier/internal/pkg/xpubsub"
)

// MessageHandler consumes delivered messages. Acknowledgement is entirely the
// handler's responsibility; crier never acks, nacks or skips on its own and
// does not inspect the handler's outcome.
type MessageHandler func(ctx context.Context, msg *Message)

// Message is the normalized form of one delivered message. Data holds the
// best-effort parsed payload (see ParsePayload); Raw always holds the exact
// bytes as published.
type Message struct {
	ID          string
	Data        any
	Raw         []byte
	Attributes  map[string]string
	PublishTime time.Time

	// Topic and Subscription name the route the message arrived on.
	Topic        string
	Subscription string

	ack  func()
	nack func()
	skip func()
}

// Ack acknowledges the message.
func (m *Message) Ack() {
	if m.ack != nil {
		m.ack()
	}
}

// Nack requests redelivery. On transports without negative-acknowledgement
// support this is a no-op.
func (m *Message) Nack() {
	if m.nack != nil {
		m.nack()
	}
}

// Skip releases the message without acknowledging it. On transports without
// release support this is a no-op.
func (m *Message) Skip() {
	if m.skip != nil {
		m.skip()
	}
}

// wrapMessage normalizes a transport message for handler consumption. The
// optional capabilities are bound only if the transport message implements
// them, no-ops otherwise.
func wrapMessage(topic, subscription string, raw xpubsub.Message) *Message {
	m := &Message{
		ID:           raw.ID(),
		Data:         ParsePayload(raw.Data()),
		Raw:          raw.Data(),
		Attributes:   raw.Attributes(),
		PublishTime:  raw.PublishTime(),
		Topic:        topic,
		Subscription: subscription,
		ack:          raw.Ack,
	}
	if n, ok := raw.(xpubsub.Nacker); ok {
		m.nack = n.Nack
	}
	if s, ok := raw.(xpubsub.Skipper); ok {
		m.skip = s.Skip
	}
	return m
}
