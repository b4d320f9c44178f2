package cmd

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/providers/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

var awsRecord = metadata.Record{
	Provider:         metadata.AWS,
	Account:          metadata.Account{ID: "123456789012"},
	Instance:         metadata.Instance{ID: "i-1234567890abcdef0"},
	AvailabilityZone: "us-west-2b",
	Region:           "us-west-2",
	Machine:          metadata.Machine{Type: "t2.micro"},
}

// discoverArgs points every provider at url
func discoverArgs(url string, extra ...string) []string {
	args := []string{
		"discover",
		"--cloud-provider", "auto",
		"--aws-metadata-url", url,
		"--azure-metadata-url", url,
		"--gcp-metadata-url", url,
		"--connect-timeout", "1s",
		"--response-timeout", "1s",
		"--coordination-timeout", "3s",
		"--output", "json",
		"--fail-if-not-in-cloud=false",
	}

	return append(args, extra...)
}

func TestDiscoverOutput(t *testing.T) {
	server := providertest.NewAWS(t, providertest.Options{Document: providertest.AWSDocument})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, discoverArgs(server.URL)...)
		require.NoError(t, err)

		var record metadata.Record
		require.NoError(t, json.Unmarshal([]byte(out), &record))
		assert.Equal(t, awsRecord, record)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, discoverArgs(server.URL, "--output", "yaml")...)
		require.NoError(t, err)

		var record metadata.Record
		require.NoError(t, yaml.Unmarshal([]byte(out), &record))
		assert.Equal(t, awsRecord, record)
	})

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, discoverArgs(server.URL, "--output", "table")...)
		require.NoError(t, err)

		for _, want := range []string{"aws", "123456789012", "i-1234567890abcdef0", "us-west-2b", "t2.micro"} {
			assert.Contains(t, out, want)
		}
		assert.NotContains(t, out, "project.name", "empty fields should be left out")
	})

	t.Run("bad format", func(t *testing.T) {
		unused := providertest.NewAWS(t, providertest.Options{Document: providertest.AWSDocument})

		out, err := execute(t, discoverArgs(unused.URL, "--output", "xml")...)
		require.Error(t, err)
		assert.Empty(t, out)
		assert.Empty(t, unused.Requests(), "an invalid format should fail before probing")
	})
}

func TestDiscoverNotInCloud(t *testing.T) {
	server := providertest.NewAWS(t, providertest.Options{})
	url := server.URL
	server.Close()

	t.Run("succeeds quietly", func(t *testing.T) {
		out, err := execute(t, discoverArgs(url)...)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("fail if not in cloud", func(t *testing.T) {
		out, err := execute(t, discoverArgs(url, "--fail-if-not-in-cloud")...)
		require.Error(t, err)
		assert.Empty(t, out)

		var exitErr *exitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, exitNotInCloud, exitErr.code)
	})
}

func TestDiscoverBadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown provider", args: discoverArgs("http://127.0.0.1:1", "--cloud-provider", "digitalocean")},
		{name: "bad url", args: discoverArgs("127.0.0.1")},
		{name: "negative timeout", args: discoverArgs("http://127.0.0.1:1", "--connect-timeout=-1s")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)

			var exitErr *exitError
			assert.False(t, errors.As(err, &exitErr), "configuration errors should use the default exit code")
		})
	}
}
