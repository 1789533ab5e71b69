// Package fakeps provides an in-memory implementation of the xpubsub
// interfaces for use in tests across the module. Delivery is FIFO per
// subscription with a single message in flight at a time, which keeps test
// assertions deterministic. Each operation has an injectable failure so error
// paths can be driven without a live service.
package fakeps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkruse/crier/internal/pkg/xpubsub"
)

const queueSize = 256

// Client implements xpubsub.Client backed by process-local state.
type Client struct {
	mu     sync.Mutex
	topics map[string]*topicState
	subs   map[string]*subState
	nextID int

	acks  int
	nacks int
	skips int

	closed bool

	// Failure injection. A non-nil error here is returned by the matching
	// operation on every handle created by this client.
	TopicExistsErr error
	CreateTopicErr error
	SubExistsErr   error
	CreateSubErr   error
	DeleteErr      error
	PublishErr     error
	ReceiveErr     error
	TopicIDsErr    error
	CloseErr       error
}

type topicState struct{}

type subState struct {
	topic       string
	ackDeadline time.Duration
	rs          xpubsub.ReceiveSettings
	queue       chan *Message
	done        chan struct{}
}

func New() *Client {
	return &Client{
		topics: make(map[string]*topicState),
		subs:   make(map[string]*subState),
	}
}

func (c *Client) Topic(id string) xpubsub.Topic {
	return &Topic{c: c, id: id}
}

func (c *Client) CreateTopic(ctx context.Context, id string) (xpubsub.Topic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateTopicErr != nil {
		return nil, c.CreateTopicErr
	}
	if _, ok := c.topics[id]; ok {
		return nil, fmt.Errorf("topic %s: AlreadyExists", id)
	}
	c.topics[id] = &topicState{}
	return &Topic{c: c, id: id}, nil
}

func (c *Client) Subscription(id string) xpubsub.Subscription {
	return &Subscription{c: c, id: id}
}

func (c *Client) CreateSubscription(ctx context.Context, id string, cfg xpubsub.SubscriptionConfig) (xpubsub.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateSubErr != nil {
		return nil, c.CreateSubErr
	}
	if _, ok := c.subs[id]; ok {
		return nil, fmt.Errorf("subscription %s: AlreadyExists", id)
	}
	topicID := cfg.Topic.ID()
	if _, ok := c.topics[topicID]; !ok {
		return nil, fmt.Errorf("topic %s: NotFound", topicID)
	}
	c.subs[id] = &subState{
		topic:       topicID,
		ackDeadline: cfg.AckDeadline,
		queue:       make(chan *Message, queueSize),
		done:        make(chan struct{}),
	}
	return &Subscription{c: c, id: id}, nil
}

func (c *Client) TopicIDs(ctx context.Context, max int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TopicIDsErr != nil {
		return nil, c.TopicIDsErr
	}
	var ids []string
	for id := range c.topics {
		if max > 0 && len(ids) >= max {
			break
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Acks, Nacks and Skips report the acknowledgement calls made against all
// messages delivered by this client.
func (c *Client) Acks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acks
}

func (c *Client) Nacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nacks
}

func (c *Client) Skips() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skips
}

// HasTopic reports whether the named topic currently exists upstream.
func (c *Client) HasTopic(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[id]
	return ok
}

// HasSub reports whether the named subscription currently exists upstream.
func (c *Client) HasSub(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[id]
	return ok
}

// SubAckDeadline returns the ack deadline the named subscription was created
// with, or zero if it does not exist.
func (c *Client) SubAckDeadline(id string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.subs[id]; ok {
		return s.ackDeadline
	}
	return 0
}

// SubReceiveSettings returns the settings last applied to the named
// subscription.
func (c *Client) SubReceiveSettings(id string) xpubsub.ReceiveSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.subs[id]; ok {
		return s.rs
	}
	return xpubsub.ReceiveSettings{}
}

// Topic is a handle to a (possibly nonexistent) fake topic, mirroring how the
// real client hands out topic objects regardless of upstream state.
type Topic struct {
	c  *Client
	id string
}

func (t *Topic) ID() string {
	return t.id
}

func (t *Topic) Exists(ctx context.Context) (bool, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.c.TopicExistsErr != nil {
		return false, t.c.TopicExistsErr
	}
	_, ok := t.c.topics[t.id]
	return ok, nil
}

func (t *Topic) Delete(ctx context.Context) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.c.DeleteErr != nil {
		return t.c.DeleteErr
	}
	delete(t.c.topics, t.id)
	return nil
}

func (t *Topic) Publish(ctx context.Context, data []byte) xpubsub.PublishResult {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.c.PublishErr != nil {
		return &result{err: t.c.PublishErr}
	}
	if _, ok := t.c.topics[t.id]; !ok {
		return &result{err: fmt.Errorf("topic %s: NotFound", t.id)}
	}
	t.c.nextID++
	msgID := fmt.Sprintf("m%d", t.c.nextID)
	for _, s := range t.c.subs {
		if s.topic != t.id {
			continue
		}
		m := &Message{
			c:     t.c,
			id:    msgID,
			data:  append([]byte(nil), data...),
			attrs: map[string]string{},
			ts:    time.Now(),
		}
		select {
		case s.queue <- m:
		default:
			// Queue full. Tests never get close to this; dropping beats
			// deadlocking the publisher.
		}
	}
	return &result{id: msgID}
}

func (t *Topic) Stop() {}

type result struct {
	id  string
	err error
}

func (r *result) Get(ctx context.Context) (string, error) {
	return r.id, r.err
}

// Subscription is a handle to a fake subscription.
type Subscription struct {
	c  *Client
	id string
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Exists(ctx context.Context) (bool, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.SubExistsErr != nil {
		return false, s.c.SubExistsErr
	}
	_, ok := s.c.subs[s.id]
	return ok, nil
}

func (s *Subscription) Delete(ctx context.Context) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.DeleteErr != nil {
		return s.c.DeleteErr
	}
	if st, ok := s.c.subs[s.id]; ok {
		close(st.done)
		delete(s.c.subs, s.id)
	}
	return nil
}

func (s *Subscription) SetReceiveSettings(rs xpubsub.ReceiveSettings) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if st, ok := s.c.subs[s.id]; ok {
		st.rs = rs
	}
}

func (s *Subscription) Receive(ctx context.Context, f func(ctx context.Context, msg xpubsub.Message)) error {
	s.c.mu.Lock()
	err := s.c.ReceiveErr
	st, ok := s.c.subs[s.id]
	s.c.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("subscription %s: NotFound", s.id)
	}
	for {
		// Cancellation wins over pending work, like the real client's clean
		// shutdown.
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case <-st.done:
			return fmt.Errorf("subscription %s: NotFound", s.id)
		case m := <-st.queue:
			f(ctx, m)
		}
	}
}

// Message records the acknowledgement calls made against it. It implements
// all three capabilities (Ack, Nack, Skip) so capability forwarding can be
// tested end to end.
type Message struct {
	c     *Client
	id    string
	data  []byte
	attrs map[string]string
	ts    time.Time

	mu      sync.Mutex
	acked   bool
	nacked  bool
	skipped bool
}

func (m *Message) ID() string {
	return m.id
}

func (m *Message) Data() []byte {
	return m.data
}

func (m *Message) Attributes() map[string]string {
	return m.attrs
}

func (m *Message) PublishTime() time.Time {
	return m.ts
}

func (m *Message) Ack() {
	m.mu.Lock()
	m.acked = true
	m.mu.Unlock()
	m.c.mu.Lock()
	m.c.acks++
	m.c.mu.Unlock()
}

func (m *Message) Nack() {
	m.mu.Lock()
	m.nacked = true
	m.mu.Unlock()
	m.c.mu.Lock()
	m.c.nacks++
	m.c.mu.Unlock()
}

func (m *Message) Skip() {
	m.mu.Lock()
	m.skipped = true
	m.mu.Unlock()
	m.c.mu.Lock()
	m.c.skips++
	m.c.mu.Unlock()
}

func (m *Message) Acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

func (m *Message) Nacked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacked
}

func (m *Message) Skipped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipped
}
