package providers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/overmindtech/cloudmeta/coordination"
	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/transport"
)

// GCPMetadataPath is the root of the GCE metadata server, read recursively
const GCPMetadataPath = "/computeMetadata/v1/"

// ErrNotGCP is returned when something answered on the GCP endpoint without
// identifying itself as the GCE metadata server
var ErrNotGCP = errors.New("response did not come from a GCE metadata server")

type gcpDocument struct {
	Instance *gcpInstance `json:"instance"`
	Project  *gcpProject  `json:"project"`
}

type gcpInstance struct {
	ID          scalar `json:"id"`
	Name        scalar `json:"name"`
	MachineType scalar `json:"machineType"`
	Zone        scalar `json:"zone"`
}

type gcpProject struct {
	NumericProjectID scalar `json:"numericProjectId"`
	ProjectID        scalar `json:"projectId"`
}

// ParseGCPDocument turns a recursive GCE metadata document into a record.
// Zones and machine types are given as resource paths such as
// projects/513326162531/zones/us-west1-b, of which only the last segment is
// kept. The region is the zone without its final -suffix. GCP has no notion of
// an account so it is always empty.
func ParseGCPDocument(b []byte) (*metadata.Record, error) {
	var doc gcpDocument
	if err := unmarshalDocument(b, &doc, "compute metadata"); err != nil {
		return nil, err
	}

	record := &metadata.Record{
		Provider: metadata.GCP,
	}

	if i := doc.Instance; i != nil {
		record.Instance = metadata.Instance{
			ID:   i.ID.String(),
			Name: i.Name.String(),
		}
		record.Machine = metadata.Machine{Type: lastSegment(i.MachineType.String())}

		if zone := lastSegment(i.Zone.String()); zone != "" {
			record.AvailabilityZone = zone
			record.Region = gcpRegion(zone)
		}
	}

	if p := doc.Project; p != nil {
		record.Project = metadata.Project{
			ID:   p.NumericProjectID.String(),
			Name: p.ProjectID.String(),
		}
	}

	return record, nil
}

// gcpRegion strips the zone letter, us-west1-b becoming us-west1
func gcpRegion(zone string) string {
	i := strings.LastIndex(zone, "-")
	if i < 0 {
		return ""
	}

	return zone[:i]
}

// GCP returns a probe for the GCE metadata server. Only a 200 response that
// carries the Metadata-Flavor: Google header is accepted, since other things
// can answer on metadata.google.internal when it resolves at all.
func GCP(endpoint Endpoint, options transport.Options) coordination.Probe[*metadata.Record] {
	return newProbe(GCPName, func(ctx context.Context) (*metadata.Record, error) {
		client := transport.NewClient(options)

		resp, err := client.Request(ctx, http.MethodGet, endpoint.URL(GCPMetadataPath, url.Values{
			"recursive": {"true"},
		}), map[string]string{
			"Metadata-Flavor": "Google",
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
			}
		}

		if resp.Header.Get("Metadata-Flavor") != "Google" {
			return nil, ErrNotGCP
		}

		body, err := readDocument(resp.Body)
		if err != nil {
			return nil, err
		}

		return ParseGCPDocument(body)
	})
}
