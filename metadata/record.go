package metadata

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider is a public cloud that metadata can be discovered from
type Provider string

const (
	AWS   Provider = "aws"
	Azure Provider = "azure"
	GCP   Provider = "gcp"
)

// Providers lists every supported provider in a stable order
var Providers = []Provider{AWS, Azure, GCP}

func (p Provider) String() string {
	return string(p)
}

// ParseProvider parses a provider name, ignoring case and surrounding spaces
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))

	switch p {
	case AWS, Azure, GCP:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cloud provider %q", s)
	}
}

type Account struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
}

type Instance struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Machine struct {
	Type string `json:"type" yaml:"type"`
}

type Project struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Record is the normalized description of the cloud environment a host is
// running in. Every value is a string, including ones that the metadata
// service returned as numbers. Records are never modified once a probe has
// produced them.
type Record struct {
	Provider         Provider `json:"provider" yaml:"provider"`
	Account          Account  `json:"account,omitzero" yaml:"account,omitempty"`
	Instance         Instance `json:"instance" yaml:"instance"`
	AvailabilityZone string   `json:"availability_zone" yaml:"availability_zone"`
	Region           string   `json:"region" yaml:"region"`
	Machine          Machine  `json:"machine" yaml:"machine"`
	Project          Project  `json:"project,omitzero" yaml:"project,omitempty"`
}

// Attributes returns the record as OpenTelemetry resource attributes using
// the cloud and host semantic conventions. Empty values are left out.
func (r *Record) Attributes() []attribute.KeyValue {
	if r == nil {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, 8)

	switch r.Provider {
	case AWS:
		attrs = append(attrs, semconv.CloudProviderAWS, semconv.CloudPlatformAWSEC2)
	case Azure:
		attrs = append(attrs, semconv.CloudProviderAzure, semconv.CloudPlatformAzureVM)
	case GCP:
		attrs = append(attrs, semconv.CloudProviderGCP, semconv.CloudPlatformGCPComputeEngine)
	}

	optional := []struct {
		value string
		attr  func(string) attribute.KeyValue
	}{
		{r.Account.ID, semconv.CloudAccountID},
		{r.Region, semconv.CloudRegion},
		{r.AvailabilityZone, semconv.CloudAvailabilityZone},
		{r.Instance.ID, semconv.HostID},
		{r.Instance.Name, semconv.HostName},
		{r.Machine.Type, semconv.HostType},
	}

	for _, o := range optional {
		if o.value != "" {
			attrs = append(attrs, o.attr(o.value))
		}
	}

	return attrs
}
