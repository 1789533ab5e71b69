package xpubsub

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// NewClient dials the Pub/Sub service for the given project. Auth is
// whatever the supplied options say, falling back to application default
// credentials when none are given (including the emulator when
// PUBSUB_EMULATOR_HOST is set).
func NewClient(ctx context.Context, projectID string, opts ...option.ClientOption) (Client, error) {
	c, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	return &gcpClient{client: c}, nil
}

type gcpClient struct {
	client *pubsub.Client
}

func (c *gcpClient) Topic(id string) Topic {
	return &gcpTopic{topic: c.client.Topic(id)}
}

func (c *gcpClient) CreateTopic(ctx context.Context, id string) (Topic, error) {
	t, err := c.client.CreateTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	return &gcpTopic{topic: t}, nil
}

func (c *gcpClient) Subscription(id string) Subscription {
	return &gcpSubscription{sub: c.client.Subscription(id)}
}

func (c *gcpClient) CreateSubscription(ctx context.Context, id string, cfg SubscriptionConfig) (Subscription, error) {
	t, ok := cfg.Topic.(*gcpTopic)
	if !ok {
		return nil, fmt.Errorf("topic %v does not belong to this client", cfg.Topic)
	}
	s, err := c.client.CreateSubscription(ctx, id, pubsub.SubscriptionConfig{
		Topic:       t.topic,
		AckDeadline: cfg.AckDeadline,
	})
	if err != nil {
		return nil, err
	}
	return &gcpSubscription{sub: s}, nil
}

func (c *gcpClient) TopicIDs(ctx context.Context, max int) ([]string, error) {
	var ids []string
	it := c.client.Topics(ctx)
	for max <= 0 || len(ids) < max {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return ids, err
		}
		ids = append(ids, t.ID())
	}
	return ids, nil
}

func (c *gcpClient) Close() error {
	return c.client.Close()
}

type gcpTopic struct {
	topic *pubsub.Topic
}

func (t *gcpTopic) ID() string {
	return t.topic.ID()
}

func (t *gcpTopic) Exists(ctx context.Context) (bool, error) {
	return t.topic.Exists(ctx)
}

func (t *gcpTopic) Delete(ctx context.Context) error {
	return t.topic.Delete(ctx)
}

func (t *gcpTopic) Publish(ctx context.Context, data []byte) PublishResult {
	return t.topic.Publish(ctx, &pubsub.Message{Data: data})
}

func (t *gcpTopic) Stop() {
	t.topic.Stop()
}

type gcpSubscription struct {
	sub *pubsub.Subscription
}

func (s *gcpSubscription) ID() string {
	return s.sub.ID()
}

func (s *gcpSubscription) Exists(ctx context.Context) (bool, error) {
	return s.sub.Exists(ctx)
}

func (s *gcpSubscription) Delete(ctx context.Context) error {
	return s.sub.Delete(ctx)
}

func (s *gcpSubscription) SetReceiveSettings(rs ReceiveSettings) {
	s.sub.ReceiveSettings = pubsub.ReceiveSettings{
		MaxOutstandingMessages: rs.MaxOutstandingMessages,
		NumGoroutines:          rs.NumGoroutines,
	}
}

func (s *gcpSubscription) Receive(ctx context.Context, f func(ctx context.Context, msg Message)) error {
	return s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		f(ctx, &gcpMessage{msg: m})
	})
}

type gcpMessage struct {
	msg *pubsub.Message
}

func (m *gcpMessage) ID() string {
	return m.msg.ID
}

func (m *gcpMessage) Data() []byte {
	return m.msg.Data
}

func (m *gcpMessage) Attributes() map[string]string {
	return m.msg.Attributes
}

func (m *gcpMessage) PublishTime() time.Time {
	return m.msg.PublishTime
}

func (m *gcpMessage) Ack() {
	m.msg.Ack()
}

// Nack makes the message eligible for immediate redelivery. The service has
// no way to release a message without scheduling redelivery, so gcpMessage
// implements Nacker but not Skipper.
func (m *gcpMessage) Nack() {
	m.msg.Nack()
}
