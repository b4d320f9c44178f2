package providers

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/overmindtech/cloudmeta/coordination"
	"github.com/overmindtech/cloudmeta/logging"
	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/transport"
	log "github.com/sirupsen/logrus"
)

// AWSIMDSv2 returns a probe that gets a session token from IMDS and then reads
// the instance identity document with it. If the token can't be obtained the
// probe fails rather than falling back to IMDSv1, which has its own probe.
func AWSIMDSv2(endpoint Endpoint, options transport.Options) coordination.Probe[*metadata.Record] {
	return newProbe(AWSIMDSv2Name, func(ctx context.Context) (*metadata.Record, error) {
		client := imds.New(imds.Options{
			Endpoint:          endpoint.BaseURL(),
			HTTPClient:        transport.NewClient(options),
			Retryer:           aws.NopRetryer{},
			ClientEnableState: imds.ClientEnabled,
			EnableFallback:    aws.FalseTernary,
			// the transport's own timers bound the request
			DisableDefaultTimeout:    true,
			DisableDefaultMaxBackoff: true,
			Logger:                   logging.SmithyLogger(log.WithContext(ctx).WithField("cloudmeta.probe", AWSIMDSv2Name)),
		})

		out, err := client.GetDynamicData(ctx, &imds.GetDynamicDataInput{
			Path: "instance-identity/document",
		})
		if err != nil {
			return nil, imdsError(err)
		}
		defer out.Content.Close()

		body, err := readDocument(out.Content)
		if err != nil {
			return nil, err
		}

		return ParseAWSDocument(body)
	})
}

// imdsError surfaces the status of a rejected IMDS request
func imdsError(err error) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return &StatusError{
			StatusCode: respErr.HTTPStatusCode(),
			Err:        err,
		}
	}

	return err
}
