package crier

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// Meta carries the optional routing fields of an envelope. Unknown fields
// cannot be expressed here; on the decode side they are rejected by schema
// validation.
type Meta struct {
	ReplyTo       string `json:"replyTo,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Envelope is the wire format produced by Publish and Send: UTF-8 JSON bytes
// of {"content": <any>, "meta": {...}}.
type Envelope struct {
	Content any  `json:"content"`
	Meta    Meta `json:"meta"`
}

// EncodeEnvelope wraps content and meta into envelope bytes. A nil meta means
// an empty one. Content must be JSON-serializable.
func EncodeEnvelope(content any, meta *Meta) ([]byte, error) {
	env := Envelope{Content: content}
	if meta != nil {
		env.Meta = *meta
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errWithDetails(ErrInvalidEnvelope, err)
	}
	return data, nil
}

// DecodeEnvelope validates data against the envelope schema and unmarshals
// it. Envelopes with unknown fields, in meta or at the top level, are
// rejected.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if err := validateRawJson(data); err != nil {
		return nil, errWithDetails(ErrInvalidEnvelope, err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errWithDetails(ErrInvalidEnvelope, err)
	}
	return &env, nil
}

// ParsePayload best-effort parses raw payload bytes into a dynamic value
// (map[string]any, []any, string, float64, bool or nil). It never fails:
// payloads that are not valid JSON are returned as the raw string, so a
// malformed message can never crash a handler.
func ParsePayload(data []byte) any {
	if !gjson.ValidBytes(data) {
		return string(data)
	}
	return gjson.ParseBytes(data).Value()
}

func validateRawJson(data []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(envelopeSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		envErrors := ""
		for _, desc := range result.Errors() {
			envErrors += " - " + desc.String()
		}
		err = errors.New(envErrors)
	}
	return err
}

var envelopeSchema = []byte(`
{
  "$schema": "http://json-schema.org/draft-07/schema",
  "type": "object",
  "required": [
    "content"
  ],
  "additionalProperties": false,
  "properties": {
    "content": {},
    "meta": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "replyTo": {
          "type": "string"
        },
        "correlationId": {
          "type": "string"
        }
      }
    }
  }
}`)
