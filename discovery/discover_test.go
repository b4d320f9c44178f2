package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/overmindtech/cloudmeta/coordination"
	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/providers"
	"github.com/overmindtech/cloudmeta/providers/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig points every provider at the same endpoint, so that whichever
// fake service is listening there decides which cloud we appear to be in
func testConfig(endpoint providers.Endpoint) Config {
	cfg := DefaultConfig()

	for _, p := range []*ProviderConfig{&cfg.AWS, &cfg.Azure, &cfg.GCP} {
		p.Endpoint = endpoint
		p.ConnectTimeout = time.Second
		p.ResponseTimeout = time.Second
	}

	return cfg
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		server   func(testing.TB, providertest.Options) *providertest.Server
		document string
		want     metadata.Provider
	}{
		{name: "aws imdsv1", server: providertest.NewAWS, document: providertest.AWSDocument, want: metadata.AWS},
		{name: "aws imdsv2", server: providertest.NewAWSIMDSv2, document: providertest.AWSDocument, want: metadata.AWS},
		{name: "azure", server: providertest.NewAzure, document: providertest.AzureDocument, want: metadata.Azure},
		{name: "gcp", server: providertest.NewGCP, document: providertest.GCPDocument, want: metadata.GCP},
		{name: "aws empty document", server: providertest.NewAWS, document: providertest.EmptyDocument, want: metadata.AWS},
		{name: "gcp empty document", server: providertest.NewGCP, document: providertest.EmptyDocument, want: metadata.GCP},
		{name: "azure empty document", server: providertest.NewAzure, document: providertest.EmptyDocument, want: metadata.Azure},
		{name: "azure mostly empty document", server: providertest.NewAzure, document: providertest.AzureMostlyEmptyDocument, want: metadata.Azure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := tt.server(t, providertest.Options{Document: tt.document})

			record, err := Discover(context.Background(), HintAuto, testConfig(server.Endpoint()))
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, tt.want, record.Provider)
		})
	}
}

func TestDiscoverGCPRecord(t *testing.T) {
	t.Parallel()

	server := providertest.NewGCP(t, providertest.Options{Document: providertest.GCPDocument})

	record, err := Discover(context.Background(), HintGCP, testConfig(server.Endpoint()))
	require.NoError(t, err)

	assert.Equal(t, &metadata.Record{
		Provider:         metadata.GCP,
		Instance:         metadata.Instance{ID: "7684572792595385001", Name: "astorm-temp-delete-me-cloud-metadata"},
		AvailabilityZone: "us-west1-b",
		Region:           "us-west1",
		Machine:          metadata.Machine{Type: "e2-micro"},
		Project:          metadata.Project{ID: "513326162531", Name: "elastic-apm"},
	}, record)
}

func TestDiscoverWrongHint(t *testing.T) {
	t.Parallel()

	server := providertest.NewGCP(t, providertest.Options{Document: providertest.GCPDocument})

	record, err := Discover(context.Background(), HintAWS, testConfig(server.Endpoint()))
	assert.Nil(t, record)
	require.Error(t, err)
	assert.True(t, IsNotInCloud(err))
	assert.ErrorIs(t, err, coordination.ErrAllFailed)

	var agg *coordination.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2, "only the two aws probes should have run")
}

func TestDiscoverHintNone(t *testing.T) {
	t.Parallel()

	server := providertest.NewAWS(t, providertest.Options{Document: providertest.AWSDocument})

	record, err := Discover(context.Background(), HintNone, testConfig(server.Endpoint()))
	assert.Nil(t, record)
	assert.ErrorIs(t, err, coordination.ErrNoProbes)
	assert.True(t, IsNotInCloud(err))
	assert.Empty(t, server.Requests(), "no request should be made")
}

func TestDiscoverHintNoneIgnoresConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AWS.Endpoint.Port = 0
	cfg.GCP.Endpoint.Protocol = "ftp"
	cfg.Timeout = -time.Second

	record, err := Discover(context.Background(), HintNone, cfg)
	assert.Nil(t, record)
	assert.ErrorIs(t, err, coordination.ErrNoProbes)
	assert.True(t, IsNotInCloud(err))
}

func TestDiscoverValidatesSelectedProviders(t *testing.T) {
	t.Parallel()

	server := providertest.NewGCP(t, providertest.Options{Document: providertest.GCPDocument})

	cfg := testConfig(server.Endpoint())
	cfg.AWS.Endpoint.Port = 0

	record, err := Discover(context.Background(), HintGCP, cfg)
	require.NoError(t, err, "an unused AWS endpoint should not be validated")
	assert.Equal(t, metadata.GCP, record.Provider)

	_, err = Discover(context.Background(), HintAWS, cfg)
	require.Error(t, err)
	assert.False(t, IsNotInCloud(err))
	assert.Len(t, server.Requests(), 1, "an invalid config should fail before any request")
}

func TestDiscoverNothingListening(t *testing.T) {
	t.Parallel()

	server := providertest.NewAWS(t, providertest.Options{})
	endpoint := server.Endpoint()
	server.Close()

	record, err := Discover(context.Background(), HintAuto, testConfig(endpoint))
	assert.Nil(t, record)
	assert.True(t, IsNotInCloud(err))
	assert.ErrorIs(t, err, coordination.ErrAllFailed)

	var agg *coordination.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 4)
}

func TestDiscoverCoordinationTimeout(t *testing.T) {
	t.Parallel()

	server := providertest.NewAzure(t, providertest.Options{
		Document: providertest.AzureDocument,
		Delay:    2 * time.Second,
	})

	cfg := testConfig(server.Endpoint())
	cfg.Azure.ResponseTimeout = 500 * time.Millisecond
	cfg.Timeout = 100 * time.Millisecond

	start := time.Now()
	record, err := Discover(context.Background(), HintAzure, cfg)
	elapsed := time.Since(start)

	assert.Nil(t, record)
	assert.ErrorIs(t, err, coordination.ErrTimeout)
	assert.True(t, IsNotInCloud(err))
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestDiscoverInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.GCP.Endpoint.Port = 0

	_, err := Discover(context.Background(), HintAuto, cfg)
	require.Error(t, err)
	assert.False(t, IsNotInCloud(err))

	_, err = Discover(context.Background(), Hint("digitalocean"), DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidHint)
}

func TestDiscoverCancelled(t *testing.T) {
	t.Parallel()

	server := providertest.NewGCP(t, providertest.Options{
		Document: providertest.GCPDocument,
		Delay:    2 * time.Second,
	})

	cfg := testConfig(server.Endpoint())
	cfg.GCP.ResponseTimeout = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Discover(ctx, HintGCP, cfg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsNotInCloud(err))
}

func TestIsNotInCloud(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{err: &coordination.AggregateError{Reason: coordination.ErrAllFailed}, want: true},
		{err: &coordination.AggregateError{Reason: coordination.ErrTimeout}, want: true},
		{err: &coordination.AggregateError{Reason: coordination.ErrNoProbes}, want: true},
		{err: fmt.Errorf("wrapped: %w", &coordination.AggregateError{Reason: coordination.ErrAllFailed}), want: true},
		{err: context.Canceled, want: false},
		{err: errors.New("something else"), want: false},
		{err: nil, want: false},
	}

	for _, tt := range tests {
		if got := IsNotInCloud(tt.err); got != tt.want {
			t.Errorf("IsNotInCloud(%v): expected %v, got %v", tt.err, tt.want, got)
		}
	}
}

func TestProbesFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hint Hint
		want []string
	}{
		{hint: HintAuto, want: []string{providers.AWSIMDSv1Name, providers.AWSIMDSv2Name, providers.AzureName, providers.GCPName}},
		{hint: HintAWS, want: []string{providers.AWSIMDSv1Name, providers.AWSIMDSv2Name}},
		{hint: HintAzure, want: []string{providers.AzureName}},
		{hint: HintGCP, want: []string{providers.GCPName}},
		{hint: HintNone, want: nil},
	}

	for _, tt := range tests {
		probes, err := probesFor(tt.hint, DefaultConfig())
		require.NoError(t, err)

		var names []string
		for _, p := range probes {
			names = append(names, p.name)
		}

		assert.Equal(t, tt.want, names, tt.hint)
	}
}
