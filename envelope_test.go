package crier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeRoundTrip(t *testing.T) {

	content := map[string]any{"orderId": float64(42), "items": []any{"a", "b"}}
	meta := &Meta{ReplyTo: "replies", CorrelationID: "abc-123"}

	data, err := EncodeEnvelope(content, meta)
	assert.NoError(t, err)

	env, err := DecodeEnvelope(data)
	assert.NoError(t, err)
	assert.Equal(t, content, env.Content)
	assert.Equal(t, *meta, env.Meta)

	// Nil meta encodes as an empty one.
	data, err = EncodeEnvelope("plain string content", nil)
	assert.NoError(t, err)
	env, err = DecodeEnvelope(data)
	assert.NoError(t, err)
	assert.Equal(t, "plain string content", env.Content)
	assert.Equal(t, Meta{}, env.Meta)
}

func TestEncodeEnvelopeRejectsUnserializableContent(t *testing.T) {

	_, err := EncodeEnvelope(func() {}, nil)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestDecodeEnvelopeRejectsMalformedInput(t *testing.T) {

	// Not JSON at all.
	_, err := DecodeEnvelope([]byte(`{bad json`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	// Missing content field.
	_, err = DecodeEnvelope([]byte(`{"meta": {}}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	// Unknown meta fields are rejected, known ones pass through unchanged.
	_, err = DecodeEnvelope([]byte(`{"content": 1, "meta": {"routingKey": "x"}}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	// Unknown top-level fields are rejected as well.
	_, err = DecodeEnvelope([]byte(`{"content": 1, "trailer": true}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	// Meta fields must be strings.
	_, err = DecodeEnvelope([]byte(`{"content": 1, "meta": {"replyTo": 7}}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	// Null content is valid content.
	env, err := DecodeEnvelope([]byte(`{"content": null, "meta": {}}`))
	assert.NoError(t, err)
	assert.Nil(t, env.Content)
}

func TestParsePayload(t *testing.T) {

	assert.Equal(t, map[string]any{"a": float64(1)}, ParsePayload([]byte(`{"a":1}`)))
	assert.Equal(t, []any{float64(1), float64(2)}, ParsePayload([]byte(`[1,2]`)))
	assert.Equal(t, "hello", ParsePayload([]byte(`"hello"`)))
	assert.Equal(t, float64(42), ParsePayload([]byte(`42`)))
	assert.Equal(t, true, ParsePayload([]byte(`true`)))
	assert.Nil(t, ParsePayload([]byte(`null`)))

	// Malformed payloads fall back to the raw string, never an error.
	assert.Equal(t, `{bad json`, ParsePayload([]byte(`{bad json`)))
	assert.Equal(t, "", ParsePayload(nil))
	assert.Equal(t, "not json at all", ParsePayload([]byte("not json at all")))
}

func TestEnrichPayload(t *testing.T) {

	payload := []byte(`{"event": "signup"}`)
	enriched, err := EnrichPayload(payload, "correlationId", "abc-123")
	assert.NoError(t, err)

	parsed := ParsePayload(enriched).(map[string]any)
	assert.Equal(t, "signup", parsed["event"])
	assert.Equal(t, "abc-123", parsed["correlationId"])
}
