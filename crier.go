package crier

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/teltech/logger"
	"github.com/tidwall/sjson"
	"google.golang.org/api/option"

	"github.com/pkruse/crier/internal/pkg/xpubsub"
	"github.com/pkruse/crier/pkg/notify"
)

// Error values returned by the crier API.
// Many of these errors will also contain additional details about the error.
// Error matching can still be done with 'if errors.Is(err, ErrTopicNotRegistered)'
// etc. due to error wrapping.
var (
	ErrConfigNotInitialized    = errors.New("crier.Config need to be created with NewConfig()")
	ErrInvalidConfig           = errors.New("invalid config")
	ErrInvalidSubscribeOptions = errors.New("invalid subscribe options")
	ErrNotInitialized          = errors.New("crier not initialized - call Init() first")
	ErrAlreadyInitialized      = errors.New("crier already initialized")
	ErrConnectionFailed        = errors.New("could not connect to the pubsub service")
	ErrTopicNotRegistered      = errors.New("topic not registered - call CreateTopic() first")
	ErrInvalidEnvelope         = errors.New("invalid message envelope")
	ErrTransport               = errors.New("pubsub operation failed")
)

const notifyCallerLevel = 2

// Crier is a thin convenience facade over one Pub/Sub connection, managing a
// registry of topic handles, envelope encoding and subscription listeners for
// one service.
//
// A Crier instance is meant to be owned by a single logical caller. The topic
// registry has no concurrent-access protection; callers needing concurrent
// CreateTopic/DeleteTopic against the same names must serialize those calls
// themselves.
type Crier struct {
	service  string
	instance string
	config   *Config
	notifier *notify.Notifier

	client xpubsub.Client
	topics map[string]xpubsub.Topic

	mu        sync.Mutex
	listeners map[string][]*listener

	newClient clientFactory
}

type clientFactory func(ctx context.Context, projectID string, opts ...option.ClientOption) (xpubsub.Client, error)

// listener tracks one Subscribe registration so that Unsubscribe can cancel
// the matching receive loop by handler identity.
type listener struct {
	topic   string
	sub     string
	handler uintptr
	cancel  context.CancelFunc
}

// New creates a crier facade for the given service, validating the config
// before anything else. No I/O happens here; call Init to connect. The
// observer may be nil, in which case events are only logged (and only if
// Config.Log is set).
func New(service string, observer notify.Observer, config *Config) (*Crier, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	var log *logger.Log
	if config.Log {
		log = logger.New()
	}
	instance := uuid.New().String()

	return &Crier{
		service:   service,
		instance:  instance,
		config:    config,
		notifier:  notify.New(observer, log, notifyCallerLevel, service, instance),
		topics:    make(map[string]xpubsub.Topic),
		listeners: make(map[string][]*listener),
		newClient: xpubsub.NewClient,
	}, nil
}

// Init connects to the pubsub service using the configured credentials and
// verifies connectivity with a lightweight list-topics call before marking
// the facade ready. No retries are attempted; retry policy is the caller's.
func (c *Crier) Init(ctx context.Context) error {
	if c.client != nil {
		return ErrAlreadyInitialized
	}

	opts, authMethod, err := c.config.clientOptions()
	if err != nil {
		return errWithDetails(ErrInvalidConfig, err)
	}
	c.notifier.Log(notify.Data{AuthMethod: authMethod}, "connecting to project %s using %s", c.config.ProjectID, authMethod)

	client, err := c.newClient(ctx, c.config.ProjectID, opts...)
	if err != nil {
		return errWithDetails(ErrConnectionFailed, err)
	}

	if _, err = client.TopicIDs(ctx, 1); err != nil {
		client.Close()
		return errWithDetails(ErrConnectionFailed, err)
	}

	c.client = client
	c.notifier.Success(notify.Data{AuthMethod: authMethod}, "connected to project %s", c.config.ProjectID)
	return nil
}

// CreateTopic registers the named topic with this instance, creating it
// upstream first if needed. Calling it for a topic that already exists
// adopts the existing one and is not an error. Concurrent calls for the same
// name are not synchronized; a lost creation race is tolerated and the
// existing topic adopted.
func (c *Crier) CreateTopic(ctx context.Context, name string) error {
	if c.client == nil {
		return ErrNotInitialized
	}

	topic := c.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return errWithDetails(ErrTransport, err)
	}
	if exists {
		c.topics[name] = topic
		c.notifier.Success(notify.Data{Topic: name}, "topic %s already exists, reusing it", name)
		return nil
	}

	created, err := c.client.CreateTopic(ctx, name)
	if err != nil {
		if !xpubsub.AlreadyExists(err) {
			return errWithDetails(ErrTransport, err)
		}
		created = topic
	}
	c.topics[name] = created
	c.notifier.Success(notify.Data{Topic: name}, "topic %s created", name)
	return nil
}

// DeleteTopic deletes a registered topic upstream and removes it from the
// registry. Subscriptions attached to the topic are not deleted and remain
// orphaned upstream; cleaning those up is the caller's concern.
func (c *Crier) DeleteTopic(ctx context.Context, name string) error {
	if c.client == nil {
		return ErrNotInitialized
	}
	topic, ok := c.topics[name]
	if !ok {
		return errWithDetails(ErrTopicNotRegistered, fmt.Errorf("topic: %s", name))
	}

	if err := topic.Delete(ctx); err != nil {
		return errWithDetails(ErrTransport, err)
	}
	topic.Stop()
	delete(c.topics, name)
	c.notifier.Log(notify.Data{Topic: name}, "topic %s deleted", name)
	return nil
}

// Subscribe attaches handler to the named subscription on a registered
// topic, creating the subscription upstream if needed. The tuning in opts
// only applies if the subscription is created here; an existing subscription
// is attached to as-is. A nil opts means defaults.
//
// Delivery starts immediately on a dedicated receive loop and continues
// until Unsubscribe or Close; ctx only bounds the setup calls. Each message
// is handed to handler wrapped as a *Message, and acknowledging it is the
// handler's responsibility. Asynchronous receive failures are reported as
// error events, never panics.
func (c *Crier) Subscribe(ctx context.Context, topicName, subName string, handler MessageHandler, opts *SubscribeOptions) error {
	if c.client == nil {
		return ErrNotInitialized
	}
	if handler == nil {
		return errWithDetails(ErrInvalidSubscribeOptions, errors.New("handler must not be nil"))
	}
	topic, ok := c.topics[topicName]
	if !ok {
		return errWithDetails(ErrTopicNotRegistered, fmt.Errorf("topic: %s", topicName))
	}
	if opts == nil {
		opts = &SubscribeOptions{}
	}
	if err := opts.validate(); err != nil {
		return err
	}

	sub, existed, err := c.ensureSubscription(ctx, topic, subName, opts)
	if err != nil {
		return err
	}

	sub.SetReceiveSettings(xpubsub.ReceiveSettings{
		MaxOutstandingMessages: opts.maxInProgress(),
		NumGoroutines:          1,
	})
	c.startListener(topicName, subName, sub, handler)

	if existed {
		c.notifier.Success(notify.Data{Topic: topicName, Subscription: subName}, "attached to existing subscription %s", subName)
	} else {
		c.notifier.Success(notify.Data{Topic: topicName, Subscription: subName}, "subscription %s created on topic %s", subName, topicName)
	}
	return nil
}

func (c *Crier) ensureSubscription(ctx context.Context, topic xpubsub.Topic, subName string, opts *SubscribeOptions) (sub xpubsub.Subscription, existed bool, err error) {
	sub = c.client.Subscription(subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, false, errWithDetails(ErrTransport, err)
	}
	if exists {
		return sub, true, nil
	}

	created, err := c.client.CreateSubscription(ctx, subName, xpubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: opts.ackDeadline(c.config),
	})
	if err != nil {
		// A competing consumer won the creation race; attach to its result.
		if xpubsub.AlreadyExists(err) {
			return sub, true, nil
		}
		return nil, false, errWithDetails(ErrTransport, err)
	}
	return created, false, nil
}

// startListener launches the receive loop for one Subscribe registration.
// The loop context is detached from the Subscribe call so delivery outlives
// it; cancellation happens via Unsubscribe or Close.
func (c *Crier) startListener(topicName, subName string, sub xpubsub.Subscription, handler MessageHandler) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		topic:   topicName,
		sub:     subName,
		handler: reflect.ValueOf(handler).Pointer(),
		cancel:  cancel,
	}

	c.mu.Lock()
	c.listeners[subName] = append(c.listeners[subName], l)
	c.mu.Unlock()

	go func() {
		// The listener entry is not removed here: a loop dying from a
		// transport error still counts as attached until Unsubscribe or
		// Close removes it.
		err := sub.Receive(ctx, func(ctx context.Context, raw xpubsub.Message) {
			handler(ctx, wrapMessage(topicName, subName, raw))
		})
		if err != nil {
			c.notifier.Error(errWithDetails(ErrTransport, err), notify.Data{Topic: topicName, Subscription: subName})
		}
	}()
}

func (c *Crier) removeListener(target *listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.listeners[target.sub]
	for i, l := range ls {
		if l == target {
			c.listeners[target.sub] = append(ls[:i], ls[i+1:]...)
			break
		}
	}
	if len(c.listeners[target.sub]) == 0 {
		delete(c.listeners, target.sub)
	}
}

// Unsubscribe cancels the receive loop that was registered on the named
// subscription with this exact handler (matching is by function reference;
// passing a different function than the one given to Subscribe is a silent
// no-op for the removal part) and then deletes the subscription upstream,
// regardless of whether a listener matched.
func (c *Crier) Unsubscribe(ctx context.Context, topicName, subName string, handler MessageHandler) error {
	if c.client == nil {
		return ErrNotInitialized
	}
	if _, ok := c.topics[topicName]; !ok {
		return errWithDetails(ErrTopicNotRegistered, fmt.Errorf("topic: %s", topicName))
	}

	if handler != nil {
		ptr := reflect.ValueOf(handler).Pointer()
		var matched []*listener
		c.mu.Lock()
		for _, l := range c.listeners[subName] {
			if l.handler == ptr {
				matched = append(matched, l)
			}
		}
		c.mu.Unlock()
		for _, l := range matched {
			l.cancel()
			c.removeListener(l)
		}
	}

	if err := c.client.Subscription(subName).Delete(ctx); err != nil {
		return errWithDetails(ErrTransport, err)
	}
	c.notifier.Log(notify.Data{Topic: topicName, Subscription: subName}, "unsubscribed %s from topic %s", subName, topicName)
	return nil
}

// Publish wraps content and meta in the standard envelope and publishes it
// to a topic previously registered with CreateTopic.
//
// With handle set to true the call is fire-and-forget: it returns once the
// message is handed to the publisher, the returned ID is empty, and a failed
// publish is reported as an error event instead of an error return. With
// handle set to false the call blocks until the service has confirmed and
// returns the server-assigned message ID.
func (c *Crier) Publish(ctx context.Context, topicName string, content any, meta *Meta, handle bool) (id string, err error) {
	if c.client == nil {
		return id, ErrNotInitialized
	}
	topic, ok := c.topics[topicName]
	if !ok {
		return id, errWithDetails(ErrTopicNotRegistered, fmt.Errorf("topic: %s", topicName))
	}

	data, err := EncodeEnvelope(content, meta)
	if err != nil {
		return id, err
	}
	return c.publish(ctx, topic, topicName, data, handle, false)
}

// Send behaves like Publish but resolves the topic directly through the
// client by name on every call instead of consulting the registry, so it
// works for topics this instance never registered. The topic must still
// exist upstream.
func (c *Crier) Send(ctx context.Context, topicName string, content any, meta *Meta, handle bool) (id string, err error) {
	if c.client == nil {
		return id, ErrNotInitialized
	}
	data, err := EncodeEnvelope(content, meta)
	if err != nil {
		return id, err
	}
	return c.publish(ctx, c.client.Topic(topicName), topicName, data, handle, true)
}

// SendRaw publishes raw bytes as-is, with no envelope wrapping and no JSON
// encoding. Topic resolution and error policy are the same as for Send.
func (c *Crier) SendRaw(ctx context.Context, topicName string, data []byte, handle bool) (id string, err error) {
	if c.client == nil {
		return id, ErrNotInitialized
	}
	return c.publish(ctx, c.client.Topic(topicName), topicName, data, handle, true)
}

// publish hands data to the topic's publisher. Ad hoc topic handles (ones
// not held in the registry) are stopped once their result has settled, to
// release the publisher's batching resources.
func (c *Crier) publish(ctx context.Context, topic xpubsub.Topic, topicName string, data []byte, handle, adHoc bool) (string, error) {
	res := topic.Publish(ctx, data)

	if !handle {
		if adHoc {
			defer topic.Stop()
		}
		id, err := res.Get(ctx)
		if err != nil {
			return "", errWithDetails(ErrTransport, err)
		}
		return id, nil
	}

	go func() {
		// Detached from the caller's ctx: the outcome is reported, not awaited.
		if _, err := res.Get(context.Background()); err != nil {
			c.notifier.Error(errWithDetails(ErrTransport, err), notify.Data{Topic: topicName})
		}
		if adHoc {
			topic.Stop()
		}
	}()
	return "", nil
}

// RegisteredTopics returns the names currently held in the topic registry,
// sorted alphabetically.
func (c *Crier) RegisteredTopics() []string {
	names := make([]string, 0, len(c.topics))
	for name := range c.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close cancels all receive loops, stops the registered topic handles and
// closes the underlying client. The facade returns to the uninitialized
// state and can be re-initialized with Init.
func (c *Crier) Close() error {
	if c.client == nil {
		return ErrNotInitialized
	}

	c.mu.Lock()
	for _, ls := range c.listeners {
		for _, l := range ls {
			l.cancel()
		}
	}
	c.listeners = make(map[string][]*listener)
	c.mu.Unlock()

	for name, topic := range c.topics {
		topic.Stop()
		delete(c.topics, name)
	}

	err := c.client.Close()
	c.client = nil
	c.notifier.Log(notify.Data{}, "pubsub client closed")
	if err != nil {
		return errWithDetails(ErrTransport, err)
	}
	return nil
}

// EnrichPayload is a convenience function for adjusting raw JSON payloads
// prior to a SendRaw, e.g. stamping correlation fields onto an event
// produced elsewhere. It's a wrapper on the sjson package. See doc at
// https://github.com/tidwall/sjson.
func EnrichPayload(payload []byte, path string, value any) ([]byte, error) {
	return sjson.SetBytes(payload, path, value)
}

func errWithDetails(err error, errDetails error) error {
	return fmt.Errorf("%w, details: %v", err, errDetails)
}
