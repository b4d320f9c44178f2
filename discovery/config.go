package discovery

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/overmindtech/cloudmeta/providers"
	"github.com/overmindtech/cloudmeta/transport"
)

const (
	// DefaultConnectTimeout is short since metadata services are link-local:
	// they either answer straight away or aren't there
	DefaultConnectTimeout = 100 * time.Millisecond
	// DefaultResponseTimeout applies to Azure and GCP
	DefaultResponseTimeout = time.Second
	// DefaultAWSResponseTimeout is longer as IMDS can be slow to produce the
	// identity document, especially with a session token
	DefaultAWSResponseTimeout = 5 * time.Second
	// DefaultTimeout bounds the whole discovery
	DefaultTimeout = 3 * time.Second
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ProviderConfig is where one provider's metadata service is and how long it
// gets to answer. A zero timeout disables that timer.
type ProviderConfig struct {
	Endpoint        providers.Endpoint
	ConnectTimeout  time.Duration `validate:"gte=0"`
	ResponseTimeout time.Duration `validate:"gte=0"`
}

// Options returns the transport options for this provider's probes
func (p ProviderConfig) Options() transport.Options {
	return transport.Options{
		ConnectTimeout:  p.ConnectTimeout,
		ResponseTimeout: p.ResponseTimeout,
	}
}

// Config configures a call to Discover
type Config struct {
	AWS   ProviderConfig
	Azure ProviderConfig
	GCP   ProviderConfig

	// Timeout bounds the whole discovery. Zero means that only the per
	// provider timeouts apply.
	Timeout time.Duration `validate:"gte=0"`
}

// DefaultConfig returns the real metadata endpoints with the default timeouts
func DefaultConfig() Config {
	return Config{
		AWS: ProviderConfig{
			Endpoint:        providers.Endpoint{Protocol: "http", Host: "169.254.169.254", Port: 80},
			ConnectTimeout:  DefaultConnectTimeout,
			ResponseTimeout: DefaultAWSResponseTimeout,
		},
		Azure: ProviderConfig{
			Endpoint:        providers.Endpoint{Protocol: "http", Host: "169.254.169.254", Port: 80},
			ConnectTimeout:  DefaultConnectTimeout,
			ResponseTimeout: DefaultResponseTimeout,
		},
		GCP: ProviderConfig{
			Endpoint:        providers.Endpoint{Protocol: "http", Host: "metadata.google.internal", Port: 80},
			ConnectTimeout:  DefaultConnectTimeout,
			ResponseTimeout: DefaultResponseTimeout,
		},
		Timeout: DefaultTimeout,
	}
}

// Validate checks every endpoint and timeout
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid discovery config: %w", err)
	}

	return nil
}

// validateFor checks only what the probes selected by hint will use, so that
// for example HintNone never fails on a misconfigured endpoint
func (c Config) validateFor(hint Hint) error {
	var selected []ProviderConfig

	switch hint {
	case HintAuto:
		selected = []ProviderConfig{c.AWS, c.Azure, c.GCP}
	case HintAWS:
		selected = []ProviderConfig{c.AWS}
	case HintAzure:
		selected = []ProviderConfig{c.Azure}
	case HintGCP:
		selected = []ProviderConfig{c.GCP}
	default:
		return nil
	}

	for _, p := range selected {
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("invalid discovery config: %w", err)
		}
	}

	if err := validate.Var(c.Timeout, "gte=0"); err != nil {
		return fmt.Errorf("invalid discovery config: coordination timeout: %w", err)
	}

	return nil
}

// MapFromConfig returns the config as a map, for logging
func MapFromConfig(c Config) map[string]any {
	return map[string]any{
		"aws-metadata-url":       c.AWS.Endpoint.BaseURL(),
		"aws-connect-timeout":    c.AWS.ConnectTimeout.String(),
		"aws-response-timeout":   c.AWS.ResponseTimeout.String(),
		"azure-metadata-url":     c.Azure.Endpoint.BaseURL(),
		"azure-connect-timeout":  c.Azure.ConnectTimeout.String(),
		"azure-response-timeout": c.Azure.ResponseTimeout.String(),
		"gcp-metadata-url":       c.GCP.Endpoint.BaseURL(),
		"gcp-connect-timeout":    c.GCP.ConnectTimeout.String(),
		"gcp-response-timeout":   c.GCP.ResponseTimeout.String(),
		"coordination-timeout":   c.Timeout.String(),
	}
}
