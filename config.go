package crier

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/option"
)

const (
	// DefaultAckDeadlineSeconds is applied to subscriptions created by
	// Subscribe when neither the config nor the subscribe options say
	// otherwise.
	DefaultAckDeadlineSeconds = 300

	defaultMaxInProgress = 1
)

// Names of the credential sources Init can end up using, as reported on the
// AuthMethod field of connection events.
const (
	AuthMethodKeyFile            = "key file"
	AuthMethodInlineCredentials  = "inline credentials"
	AuthMethodApplicationDefault = "application default credentials"
)

// Config needs to be created with NewConfig() and filled in with config as
// applicable for the intended setup, and provided in the call to crier.New().
// Only the project ID is required. See individual fields for documentation.
type Config struct {

	// ProjectID is the cloud project owning the topics and subscriptions.
	ProjectID string

	// KeyFilename optionally points to a service account key file to
	// authenticate with. Mutually exclusive with Credentials.
	KeyFilename string

	// Credentials optionally provide a service account inline, for setups
	// where key material arrives via a secret store rather than a file.
	// Mutually exclusive with KeyFilename.
	//
	// If neither KeyFilename nor Credentials are set, application default
	// credentials are used (which also covers the emulator when
	// PUBSUB_EMULATOR_HOST is set).
	Credentials *Credentials

	// AckDeadlineSeconds is the default acknowledgement deadline for
	// subscriptions created by Subscribe. Zero means
	// DefaultAckDeadlineSeconds; the value only applies at creation time and
	// is never retrofitted onto existing subscriptions.
	AckDeadlineSeconds int

	// If set to true native logging will be used (info and error logs).
	// If set to false (default) no standard logging will be done, but the
	// same type of information will be provided to the Observer given to
	// crier.New().
	Log bool

	initialized bool
}

// Credentials hold the two service account fields needed to mint tokens.
type Credentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// NewConfig returns an initialized Config struct with defaults applied,
// required for crier.New().
func NewConfig(projectID string) *Config {
	return &Config{
		ProjectID:          projectID,
		AckDeadlineSeconds: DefaultAckDeadlineSeconds,
		initialized:        true,
	}
}

func (c *Config) validate() error {
	if c == nil || !c.initialized {
		return ErrConfigNotInitialized
	}
	if c.ProjectID == "" {
		return errWithDetails(ErrInvalidConfig, errors.New("ProjectID is required"))
	}
	if c.AckDeadlineSeconds < 0 {
		return errWithDetails(ErrInvalidConfig, fmt.Errorf("AckDeadlineSeconds must not be negative, got: %d", c.AckDeadlineSeconds))
	}
	if c.KeyFilename != "" && c.Credentials != nil {
		return errWithDetails(ErrInvalidConfig, errors.New("KeyFilename and Credentials are mutually exclusive"))
	}
	if c.Credentials != nil && (c.Credentials.ClientEmail == "" || c.Credentials.PrivateKey == "") {
		return errWithDetails(ErrInvalidConfig, errors.New("inline Credentials require both ClientEmail and PrivateKey"))
	}
	return nil
}

// clientOptions resolves the credential precedence (key file, then inline
// credentials, then application defaults) into client options plus the
// auth method name to report on connection events.
func (c *Config) clientOptions() ([]option.ClientOption, string, error) {
	switch {
	case c.KeyFilename != "":
		return []option.ClientOption{option.WithCredentialsFile(c.KeyFilename)}, AuthMethodKeyFile, nil
	case c.Credentials != nil:
		data, err := c.Credentials.serviceAccountJSON()
		if err != nil {
			return nil, "", err
		}
		return []option.ClientOption{option.WithCredentialsJSON(data)}, AuthMethodInlineCredentials, nil
	}
	return nil, AuthMethodApplicationDefault, nil
}

func (c *Config) ackDeadline() time.Duration {
	secs := c.AckDeadlineSeconds
	if secs == 0 {
		secs = DefaultAckDeadlineSeconds
	}
	return time.Duration(secs) * time.Second
}

// serviceAccountJSON assembles the minimal service account document the
// credentials loader accepts.
func (cr *Credentials) serviceAccountJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": cr.ClientEmail,
		"private_key":  cr.PrivateKey,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
}

// SubscribeOptions tune a single Subscribe call. A nil options value is
// valid and means all defaults.
type SubscribeOptions struct {

	// AckDeadlineSeconds overrides Config.AckDeadlineSeconds for the
	// subscription created by this Subscribe call. Zero means the config
	// default. Has no effect when attaching to an existing subscription.
	AckDeadlineSeconds int

	// MaxInProgress caps how many messages may be outstanding to the handler
	// at once. Zero means 1, i.e. strictly serial delivery.
	MaxInProgress int
}

func (o *SubscribeOptions) validate() error {
	if o.AckDeadlineSeconds < 0 {
		return errWithDetails(ErrInvalidSubscribeOptions, fmt.Errorf("AckDeadlineSeconds must not be negative, got: %d", o.AckDeadlineSeconds))
	}
	if o.MaxInProgress < 0 {
		return errWithDetails(ErrInvalidSubscribeOptions, fmt.Errorf("MaxInProgress must not be negative, got: %d", o.MaxInProgress))
	}
	return nil
}

func (o *SubscribeOptions) ackDeadline(config *Config) time.Duration {
	if o.AckDeadlineSeconds > 0 {
		return time.Duration(o.AckDeadlineSeconds) * time.Second
	}
	return config.ackDeadline()
}

func (o *SubscribeOptions) maxInProgress() int {
	if o.MaxInProgress > 0 {
		return o.MaxInProgress
	}
	return defaultMaxInProgress
}
