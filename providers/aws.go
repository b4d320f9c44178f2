package providers

import (
	"context"
	"net/http"

	"github.com/overmindtech/cloudmeta/coordination"
	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/transport"
)

// AWSDocumentPath is where IMDS serves the instance identity document
const AWSDocumentPath = "/latest/dynamic/instance-identity/document"

type awsDocument struct {
	AccountID        scalar `json:"accountId"`
	InstanceID       scalar `json:"instanceId"`
	AvailabilityZone scalar `json:"availabilityZone"`
	InstanceType     scalar `json:"instanceType"`
	Region           scalar `json:"region"`
}

// ParseAWSDocument turns an EC2 instance identity document into a record.
// Missing fields are left empty.
func ParseAWSDocument(b []byte) (*metadata.Record, error) {
	var doc awsDocument
	if err := unmarshalDocument(b, &doc, "instance identity document"); err != nil {
		return nil, err
	}

	return &metadata.Record{
		Provider:         metadata.AWS,
		Account:          metadata.Account{ID: doc.AccountID.String()},
		Instance:         metadata.Instance{ID: doc.InstanceID.String()},
		AvailabilityZone: doc.AvailabilityZone.String(),
		Region:           doc.Region.String(),
		Machine:          metadata.Machine{Type: doc.InstanceType.String()},
	}, nil
}

// AWSIMDSv1 returns a probe that reads the instance identity document without
// a session token. Instances that enforce IMDSv2 reject it with a 401, which
// is why it always runs alongside AWSIMDSv2.
func AWSIMDSv1(endpoint Endpoint, options transport.Options) coordination.Probe[*metadata.Record] {
	return newProbe(AWSIMDSv1Name, func(ctx context.Context) (*metadata.Record, error) {
		client := transport.NewClient(options)

		resp, err := client.Request(ctx, http.MethodGet, endpoint.URL(AWSDocumentPath, nil), nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return nil, err
		}

		body, err := readDocument(resp.Body)
		if err != nil {
			return nil, err
		}

		return ParseAWSDocument(body)
	})
}
