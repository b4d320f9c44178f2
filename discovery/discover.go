package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/overmindtech/cloudmeta/coordination"
	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/providers"
	"github.com/overmindtech/cloudmeta/tracing"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// IsNotInCloud reports whether err is the ordinary outcome of running outside
// a recognised cloud: every probe failed, the coordination timed out, or the
// hint disabled discovery altogether
func IsNotInCloud(err error) bool {
	return errors.Is(err, coordination.ErrAllFailed) ||
		errors.Is(err, coordination.ErrTimeout) ||
		errors.Is(err, coordination.ErrNoProbes)
}

type namedProbe struct {
	name  string
	probe coordination.Probe[*metadata.Record]
}

// probesFor lists the probes to race for a hint, in a stable order
func probesFor(hint Hint, cfg Config) ([]namedProbe, error) {
	aws := []namedProbe{
		{providers.AWSIMDSv1Name, providers.AWSIMDSv1(cfg.AWS.Endpoint, cfg.AWS.Options())},
		{providers.AWSIMDSv2Name, providers.AWSIMDSv2(cfg.AWS.Endpoint, cfg.AWS.Options())},
	}
	azure := namedProbe{providers.AzureName, providers.Azure(cfg.Azure.Endpoint, cfg.Azure.Options())}
	gcp := namedProbe{providers.GCPName, providers.GCP(cfg.GCP.Endpoint, cfg.GCP.Options())}

	switch hint {
	case HintAuto:
		return append(aws, azure, gcp), nil
	case HintAWS:
		return aws, nil
	case HintAzure:
		return []namedProbe{azure}, nil
	case HintGCP:
		return []namedProbe{gcp}, nil
	case HintNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidHint, hint)
	}
}

// Discover races the probes selected by hint and returns the first record any
// of them produces. When none does the error is a *coordination.AggregateError
// holding every probe failure, and IsNotInCloud returns true for it. If ctx
// ends first its error is returned instead.
func Discover(ctx context.Context, hint Hint, cfg Config) (*metadata.Record, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Discover", trace.WithAttributes(
		attribute.String("cloudmeta.hint", hint.String()),
	))
	defer span.End()

	lf := log.Fields{
		"cloudmeta.hint": hint,
	}

	probes, err := probesFor(hint, cfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := cfg.validateFor(hint); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = -1
	}

	c := coordination.New[*metadata.Record](coordination.WithTimeout(timeout))
	for _, p := range probes {
		if err := c.Schedule(p.name, p.probe); err != nil {
			return nil, err
		}
	}

	lf["cloudmeta.probes"] = c.Len()
	log.WithContext(ctx).WithFields(lf).WithFields(MapFromConfig(cfg)).Debug("Starting cloud metadata discovery")

	c.Start(ctx)
	record, err := c.Wait(ctx)
	c.RecordOnSpan(span)

	switch {
	case err == nil:
		span.SetAttributes(record.Attributes()...)
		span.SetAttributes(attribute.String("cloudmeta.outcome", "found"))

		lf["cloudmeta.provider"] = record.Provider
		lf["cloudmeta.region"] = record.Region
		log.WithContext(ctx).WithFields(lf).Info("Discovered cloud metadata")

		return record, nil
	case IsNotInCloud(err):
		span.SetAttributes(attribute.String("cloudmeta.outcome", "not-in-cloud"))

		log.WithContext(ctx).WithFields(lf).WithError(err).Info("No cloud metadata found")

		return nil, err
	default:
		span.SetAttributes(attribute.String("cloudmeta.outcome", "aborted"))
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}
}
