package fakeps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pkruse/crier/internal/pkg/xpubsub"
)

func TestPublishReachesSubscription(t *testing.T) {
	ctx := context.Background()
	c := New()

	topic, err := c.CreateTopic(ctx, "orders")
	assert.NoError(t, err)

	_, err = c.CreateSubscription(ctx, "orders-worker", xpubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	assert.NoError(t, err)
	assert.Equal(t, 10*time.Second, c.SubAckDeadline("orders-worker"))

	res := topic.Publish(ctx, []byte(`{"n":1}`))
	id, err := res.Get(ctx)
	assert.NoError(t, err)
	assert.NotEmpty(t, id)

	received := make(chan xpubsub.Message, 1)
	rcvCtx, cancel := context.WithCancel(ctx)
	go func() {
		_ = c.Subscription("orders-worker").Receive(rcvCtx, func(ctx context.Context, msg xpubsub.Message) {
			msg.Ack()
			received <- msg
		})
	}()

	select {
	case msg := <-received:
		assert.Equal(t, id, msg.ID())
		assert.Equal(t, []byte(`{"n":1}`), msg.Data())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	cancel()
	assert.Equal(t, 1, c.Acks())
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	c := New()
	topic, err := c.CreateTopic(ctx, "orders")
	assert.NoError(t, err)

	_, err = c.CreateTopic(ctx, "orders")
	assert.True(t, xpubsub.AlreadyExists(err))

	c.PublishErr = errors.New("publish down")
	_, err = topic.Publish(ctx, []byte("x")).Get(ctx)
	assert.EqualError(t, err, "publish down")
	c.PublishErr = nil

	_, err = c.Topic("nowhere").Publish(ctx, []byte("x")).Get(ctx)
	assert.Error(t, err)

	c.ReceiveErr = errors.New("stream broken")
	err = c.Subscription("any").Receive(ctx, func(context.Context, xpubsub.Message) {})
	assert.EqualError(t, err, "stream broken")
}
