package crier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {

	config := NewConfig("my-project")
	assert.Equal(t, "my-project", config.ProjectID)
	assert.Equal(t, DefaultAckDeadlineSeconds, config.AckDeadlineSeconds)
	assert.NoError(t, config.validate())
}

func TestConfigValidation(t *testing.T) {

	// Config structs not created with NewConfig() are rejected up front.
	err := (&Config{ProjectID: "my-project"}).validate()
	assert.ErrorIs(t, err, ErrConfigNotInitialized)
	err = (*Config)(nil).validate()
	assert.ErrorIs(t, err, ErrConfigNotInitialized)

	err = NewConfig("").validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	config := NewConfig("my-project")
	config.AckDeadlineSeconds = -1
	assert.ErrorIs(t, config.validate(), ErrInvalidConfig)

	// Key file and inline credentials cannot both be given.
	config = NewConfig("my-project")
	config.KeyFilename = "/etc/keys/sa.json"
	config.Credentials = &Credentials{ClientEmail: "svc@my-project.iam.gserviceaccount.com", PrivateKey: "pem"}
	assert.ErrorIs(t, config.validate(), ErrInvalidConfig)

	// Inline credentials must be complete.
	config = NewConfig("my-project")
	config.Credentials = &Credentials{ClientEmail: "svc@my-project.iam.gserviceaccount.com"}
	assert.ErrorIs(t, config.validate(), ErrInvalidConfig)
}

func TestConfigAuthMethodSelection(t *testing.T) {

	config := NewConfig("my-project")
	opts, authMethod, err := config.clientOptions()
	assert.NoError(t, err)
	assert.Equal(t, AuthMethodApplicationDefault, authMethod)
	assert.Empty(t, opts)

	config.KeyFilename = "/etc/keys/sa.json"
	opts, authMethod, err = config.clientOptions()
	assert.NoError(t, err)
	assert.Equal(t, AuthMethodKeyFile, authMethod)
	assert.Len(t, opts, 1)

	config = NewConfig("my-project")
	config.Credentials = &Credentials{ClientEmail: "svc@my-project.iam.gserviceaccount.com", PrivateKey: "pem"}
	opts, authMethod, err = config.clientOptions()
	assert.NoError(t, err)
	assert.Equal(t, AuthMethodInlineCredentials, authMethod)
	assert.Len(t, opts, 1)
}

func TestCredentialsServiceAccountJSON(t *testing.T) {

	creds := &Credentials{ClientEmail: "svc@my-project.iam.gserviceaccount.com", PrivateKey: "pem"}
	data, err := creds.serviceAccountJSON()
	assert.NoError(t, err)

	parsed := ParsePayload(data)
	doc, ok := parsed.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "service_account", doc["type"])
	assert.Equal(t, "svc@my-project.iam.gserviceaccount.com", doc["client_email"])
	assert.Equal(t, "pem", doc["private_key"])
}

func TestSubscribeOptions(t *testing.T) {

	config := NewConfig("my-project")

	// Defaults: config ack deadline and strictly serial delivery.
	opts := &SubscribeOptions{}
	assert.NoError(t, opts.validate())
	assert.Equal(t, 300*time.Second, opts.ackDeadline(config))
	assert.Equal(t, 1, opts.maxInProgress())

	opts = &SubscribeOptions{AckDeadlineSeconds: 60, MaxInProgress: 8}
	assert.NoError(t, opts.validate())
	assert.Equal(t, 60*time.Second, opts.ackDeadline(config))
	assert.Equal(t, 8, opts.maxInProgress())

	assert.ErrorIs(t, (&SubscribeOptions{AckDeadlineSeconds: -1}).validate(), ErrInvalidSubscribeOptions)
	assert.ErrorIs(t, (&SubscribeOptions{MaxInProgress: -1}).validate(), ErrInvalidSubscribeOptions)
}
