// Package providers contains one probe per cloud metadata service. Each probe
// makes the provider's handshake against a configurable endpoint, turns the
// response into a *metadata.Record, and reports the outcome exactly once to a
// coordination.Reporter.
//
// Every failure, be it a timeout, a refused connection, an unexpected status
// or a document that can't be parsed, is reported as an error prefixed with
// the probe's name. A probe on a machine outside that cloud is expected to
// fail, so failures are only logged at debug level.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/overmindtech/cloudmeta/coordination"
	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/tracing"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Probe names, used as error prefixes, log fields and span names
const (
	AWSIMDSv1Name = "aws-imdsv1"
	AWSIMDSv2Name = "aws-imdsv2"
	AzureName     = "azure"
	GCPName       = "gcp"
)

// StatusError is returned when a metadata service answers with a status that
// the probe doesn't accept
type StatusError struct {
	StatusCode int
	Status     string
	// Err is the SDK's own error, when the request went through one
	Err error
}

func (e *StatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}

	return "unexpected status " + status
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// fetchFunc performs one provider's handshake
type fetchFunc func(ctx context.Context) (*metadata.Record, error)

// newProbe wraps a fetch in a span and reports its outcome
func newProbe(name string, fetch fetchFunc) coordination.Probe[*metadata.Record] {
	return func(ctx context.Context, r coordination.Reporter[*metadata.Record]) {
		ctx, span := tracing.Tracer().Start(ctx, "providers."+name, trace.WithAttributes(
			attribute.String("cloudmeta.probe", name),
		))
		defer span.End()

		record, err := fetch(ctx)
		if err != nil {
			err = fmt.Errorf("%v: %w", name, err)

			span.SetStatus(codes.Error, err.Error())
			log.WithContext(ctx).WithError(err).WithField("cloudmeta.probe", name).Debug("Metadata probe failed")

			r.Report(nil, err)
			return
		}

		span.SetAttributes(record.Attributes()...)
		log.WithContext(ctx).WithFields(log.Fields{
			"cloudmeta.probe":    name,
			"cloudmeta.provider": record.Provider,
		}).Debug("Metadata probe succeeded")

		r.Report(record, nil)
	}
}

// checkStatus accepts any 2xx response
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	return nil
}
