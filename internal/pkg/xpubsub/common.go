// Package xpubsub wraps the subset of the Google Cloud Pub/Sub client that
// crier delegates to, behind narrow interfaces so the facade can be exercised
// against in-memory fakes in tests. No delivery, retry or flow-control logic
// lives here; the wrapped client owns all of that.
package xpubsub

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// Client is the facade's view of one Pub/Sub connection.
type Client interface {
	Topic(id string) Topic
	CreateTopic(ctx context.Context, id string) (Topic, error)
	Subscription(id string) Subscription
	CreateSubscription(ctx context.Context, id string, cfg SubscriptionConfig) (Subscription, error)

	// TopicIDs lists up to max topic names of the project (max <= 0 means all).
	// Used as a cheap connectivity probe.
	TopicIDs(ctx context.Context, max int) ([]string, error)

	Close() error
}

// Topic is a publishable topic handle. Handles obtained ad hoc (outside the
// facade registry) should be stopped once their last publish has settled.
type Topic interface {
	ID() string
	Exists(ctx context.Context) (bool, error)
	Delete(ctx context.Context) error
	Publish(ctx context.Context, data []byte) PublishResult
	Stop()
}

// PublishResult resolves to the server-assigned message ID, blocking in Get
// until the service has accepted or rejected the message.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// Subscription is a consumable subscription handle.
type Subscription interface {
	ID() string
	Exists(ctx context.Context) (bool, error)
	Delete(ctx context.Context) error

	// SetReceiveSettings must be called before Receive to take effect.
	SetReceiveSettings(rs ReceiveSettings)

	// Receive delivers messages to f until ctx is canceled (clean exit, nil
	// error) or the transport fails.
	Receive(ctx context.Context, f func(ctx context.Context, msg Message)) error
}

// ReceiveSettings carries the client-side flow control knobs the facade
// passes through.
type ReceiveSettings struct {
	MaxOutstandingMessages int
	NumGoroutines          int
}

// SubscriptionConfig carries the creation-time tuning of a subscription.
// Tuning is not retrofitted onto subscriptions that already exist.
type SubscriptionConfig struct {
	Topic       Topic
	AckDeadline time.Duration
}

// Message is a single delivered message. Ack is always available. Transports
// that cannot negative-acknowledge or release a message simply do not
// implement Nacker/Skipper; callers degrade those calls to no-ops.
type Message interface {
	ID() string
	Data() []byte
	Attributes() map[string]string
	PublishTime() time.Time
	Ack()
}

// Nacker is the optional negative-acknowledge capability of a Message.
type Nacker interface {
	Nack()
}

// Skipper is the optional release-without-acknowledge capability of a Message.
type Skipper interface {
	Skip()
}

// AlreadyExists reports whether err indicates the resource was created by
// someone else first. The GCP libs offer no single error value for this, so
// both the REST (409) and the stringified gRPC shapes are checked.
func AlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusConflict
	}
	return strings.Contains(err.Error(), "AlreadyExists")
}
