package crier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ackOnlyMsg is a transport message with no Nack/Skip support.
type ackOnlyMsg struct {
	data  []byte
	acked bool
}

func (m *ackOnlyMsg) ID() string                    { return "msg-1" }
func (m *ackOnlyMsg) Data() []byte                  { return m.data }
func (m *ackOnlyMsg) Attributes() map[string]string { return map[string]string{"origin": "test"} }
func (m *ackOnlyMsg) PublishTime() time.Time        { return time.Unix(1700000000, 0) }
func (m *ackOnlyMsg) Ack()                          { m.acked = true }

// fullMsg supports all three acknowledgement capabilities.
type fullMsg struct {
	ackOnlyMsg
	nacked  bool
	skipped bool
}

func (m *fullMsg) Nack() { m.nacked = true }
func (m *fullMsg) Skip() { m.skipped = true }

func TestWrapMessageForwardsCapabilities(t *testing.T) {

	raw := &fullMsg{ackOnlyMsg: ackOnlyMsg{data: []byte(`{"a":1}`)}}
	msg := wrapMessage("orders", "orders-worker", raw)

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "orders", msg.Topic)
	assert.Equal(t, "orders-worker", msg.Subscription)
	assert.Equal(t, map[string]any{"a": float64(1)}, msg.Data)
	assert.Equal(t, []byte(`{"a":1}`), msg.Raw)
	assert.Equal(t, "test", msg.Attributes["origin"])
	assert.Equal(t, time.Unix(1700000000, 0), msg.PublishTime)

	msg.Ack()
	msg.Nack()
	msg.Skip()
	assert.True(t, raw.acked)
	assert.True(t, raw.nacked)
	assert.True(t, raw.skipped)
}

func TestWrapMessageDegradesMissingCapabilities(t *testing.T) {

	raw := &ackOnlyMsg{data: []byte(`{bad json`)}
	msg := wrapMessage("orders", "orders-worker", raw)

	// Nack and Skip become no-ops rather than panics.
	msg.Nack()
	msg.Skip()
	assert.False(t, raw.acked)
	msg.Ack()
	assert.True(t, raw.acked)

	// Malformed payloads surface as the raw string.
	assert.Equal(t, `{bad json`, msg.Data)
}

func TestZeroValueMessageIsInert(t *testing.T) {

	var msg Message
	msg.Ack()
	msg.Nack()
	msg.Skip()
}
