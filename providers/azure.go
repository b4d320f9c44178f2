package providers

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/overmindtech/cloudmeta/coordination"
	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/tracing"
	"github.com/overmindtech/cloudmeta/transport"
)

const (
	// AzureMetadataPath is where the Azure Instance Metadata Service lives
	AzureMetadataPath = "/metadata/instance"
	// AzureAPIVersion is the IMDS api-version that is requested
	AzureAPIVersion = "2020-09-01"

	azureModule = "cloudmeta/providers"
)

type azureDocument struct {
	Compute *azureCompute `json:"compute"`
}

type azureCompute struct {
	SubscriptionID    scalar `json:"subscriptionId"`
	VMID              scalar `json:"vmId"`
	Name              scalar `json:"name"`
	ResourceGroupName scalar `json:"resourceGroupName"`
	Zone              scalar `json:"zone"`
	VMSize            scalar `json:"vmSize"`
	Location          scalar `json:"location"`
}

// ParseAzureDocument turns an Azure instance metadata document into a record.
// Everything comes from the compute section; a document without one gives a
// record with only the provider set.
func ParseAzureDocument(b []byte) (*metadata.Record, error) {
	var doc azureDocument
	if err := unmarshalDocument(b, &doc, "instance metadata"); err != nil {
		return nil, err
	}

	record := &metadata.Record{
		Provider: metadata.Azure,
	}

	if c := doc.Compute; c != nil {
		record.Account = metadata.Account{ID: c.SubscriptionID.String()}
		record.Instance = metadata.Instance{
			ID:   c.VMID.String(),
			Name: c.Name.String(),
		}
		record.AvailabilityZone = c.Zone.String()
		record.Region = c.Location.String()
		record.Machine = metadata.Machine{Type: c.VMSize.String()}
		record.Project = metadata.Project{Name: c.ResourceGroupName.String()}
	}

	return record, nil
}

// Azure returns a probe for the Azure Instance Metadata Service. The request
// goes through an azcore pipeline with retries and telemetry turned off, on
// top of the dual-timeout transport.
func Azure(endpoint Endpoint, options transport.Options) coordination.Probe[*metadata.Record] {
	return newProbe(AzureName, func(ctx context.Context) (*metadata.Record, error) {
		pipeline := runtime.NewPipeline(azureModule, tracing.Version(), runtime.PipelineOptions{}, &policy.ClientOptions{
			Transport: transport.NewClient(options),
			Retry: policy.RetryOptions{
				MaxRetries: -1,
			},
			Telemetry: policy.TelemetryOptions{
				Disabled: true,
			},
		})

		req, err := runtime.NewRequest(ctx, http.MethodGet, endpoint.URL(AzureMetadataPath, url.Values{
			"api-version": {AzureAPIVersion},
		}))
		if err != nil {
			return nil, err
		}
		req.Raw().Header.Set("Metadata", "true")
		// the body is read below, within maxDocumentSize
		runtime.SkipBodyDownload(req)

		resp, err := pipeline.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body = io.NopCloser(io.LimitReader(resp.Body, maxDocumentSize))

			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Err:        runtime.NewResponseError(resp),
			}
		}

		body, err := readDocument(resp.Body)
		if err != nil {
			return nil, err
		}

		return ParseAzureDocument(body)
	})
}
