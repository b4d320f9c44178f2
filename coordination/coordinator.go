// Package coordination races a set of independent probes against each other.
//
// A Coordinator is given a number of probes before it is started. Once
// started, every probe runs on its own goroutine and reports back exactly once
// through its Reporter. The first successful report wins and resolves the
// coordinator. If every probe fails, the coordinator resolves with an
// *AggregateError holding all of their errors. An optional overall timeout
// guarantees that the coordinator resolves even if a probe never reports.
//
// Resolution happens exactly once. Reports that arrive afterwards are counted
// but otherwise ignored, and the coordinator never cancels the probes that
// lost: each probe is expected to bound its own work.
//
//	c := coordination.New[*Thing](coordination.WithTimeout(time.Second))
//	c.Schedule("first", probeA)
//	c.Schedule("second", probeB)
//	c.Start(ctx)
//	thing, err := c.Wait(ctx)
package coordination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/overmindtech/cloudmeta/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNoProbes is the reason given when Start is called without any probes
	ErrNoProbes = errors.New("no probes registered")
	// ErrAllFailed is the reason given when every probe reported an error
	ErrAllFailed = errors.New("no response from any probe")
	// ErrTimeout is the reason given when the overall timeout elapsed first
	ErrTimeout = errors.New("coordination reached timeout")

	// ErrEmptyResult is recorded for a probe that reported neither a value nor
	// an error
	ErrEmptyResult = errors.New("probe reported an empty result")
	// ErrAlreadyStarted is returned when scheduling after Start
	ErrAlreadyStarted = errors.New("coordinator already started")
)

// AggregateError is the failure a coordinator resolves with when no probe
// succeeded
type AggregateError struct {
	// Reason is one of ErrNoProbes, ErrAllFailed or ErrTimeout
	Reason error
	// Errors are the probe errors collected up to the moment of resolution, in
	// the order they were reported
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return e.Reason.Error()
	}

	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}

	return fmt.Sprintf("%v: %v", e.Reason, strings.Join(msgs, "; "))
}

// Is matches the reason of the failure
func (e *AggregateError) Is(target error) bool {
	return target == e.Reason
}

// Unwrap exposes the collected probe errors to errors.Is and errors.As
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Reporter is handed to each probe so that it can report its outcome
type Reporter[T comparable] interface {
	// Report records the outcome of the probe. A nil error and a non-zero
	// value is a success, anything else is a failure. Only the first call
	// from each probe counts.
	Report(value T, err error)
}

// Probe is one unit of work raced by a Coordinator. It must eventually call
// Report on the given reporter, usually exactly once.
type Probe[T comparable] func(ctx context.Context, r Reporter[T])

type scheduledProbe[T comparable] struct {
	name  string
	probe Probe[T]
}

// Option configures a Coordinator
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout sets the overall timeout. A negative duration disables it,
// which is also the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Coordinator races probes. See the package documentation for semantics.
type Coordinator[T comparable] struct {
	timeout   time.Duration
	onResolve func(T, error)

	mu       sync.Mutex
	probes   []scheduledProbe[T]
	started  bool
	reported []bool
	count    int
	errs     []error
	resolved bool
	result   T
	err      error
	timer    *time.Timer

	done chan struct{}
	wg   *conc.WaitGroup
}

// New creates a Coordinator
func New[T comparable](opts ...Option) *Coordinator[T] {
	o := options{
		timeout: -1,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Coordinator[T]{
		timeout: o.timeout,
		done:    make(chan struct{}),
		wg:      conc.NewWaitGroup(),
	}
}

// OnResolve registers a function that is called exactly once, when the
// coordinator resolves. Only valid before Start.
func (c *Coordinator[T]) OnResolve(f func(T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	c.onResolve = f

	return nil
}

// Schedule registers a probe. The name is only used in logs and spans.
func (c *Coordinator[T]) Schedule(name string, probe Probe[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	c.probes = append(c.probes, scheduledProbe[T]{
		name:  name,
		probe: probe,
	})

	return nil
}

// Len returns the number of scheduled probes
func (c *Coordinator[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.probes)
}

// Start dispatches every scheduled probe on its own goroutine and arms the
// overall timeout. With no probes it resolves immediately with ErrNoProbes.
// Calling Start more than once has no effect.
func (c *Coordinator[T]) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.reported = make([]bool, len(c.probes))
	probes := c.probes

	if len(probes) == 0 {
		var zero T
		c.resolveLocked(zero, &AggregateError{Reason: ErrNoProbes})
		c.mu.Unlock()
		c.notify()
		return
	}

	if c.timeout >= 0 {
		c.timer = time.AfterFunc(c.timeout, c.expire)
	}
	c.mu.Unlock()

	for i, p := range probes {
		r := &reporter[T]{c: c, index: i, name: p.name}

		c.wg.Go(func() {
			c.run(ctx, p, r)
		})
	}
}

// run executes one probe, turning a panic into a failure report
func (c *Coordinator[T]) run(ctx context.Context, p scheduledProbe[T], r *reporter[T]) {
	var catcher panics.Catcher
	catcher.Try(func() {
		p.probe(ctx, r)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		tracing.HandleError(ctx, "coordination."+p.name, recovered.Value, string(recovered.Stack))

		var zero T
		r.Report(zero, fmt.Errorf("%v: probe panicked: %v", p.name, recovered.Value))
	}
}

type reporter[T comparable] struct {
	c     *Coordinator[T]
	index int
	name  string
}

func (r *reporter[T]) Report(value T, err error) {
	r.c.record(r.index, r.name, value, err)
}

// record handles a report from the probe at index
func (c *Coordinator[T]) record(index int, name string, value T, err error) {
	var zero T
	if err == nil && value == zero {
		err = fmt.Errorf("%v: %w", name, ErrEmptyResult)
	}

	c.mu.Lock()

	if c.reported[index] {
		c.mu.Unlock()
		log.WithFields(log.Fields{
			"cloudmeta.probe": name,
			"err":             err,
		}).Debug("Ignoring duplicate report from probe")
		return
	}
	c.reported[index] = true
	c.count++

	if err == nil {
		if c.resolved {
			c.mu.Unlock()
			return
		}

		c.resolveLocked(value, nil)
		c.mu.Unlock()
		c.notify()
		return
	}

	c.errs = append(c.errs, err)

	if c.resolved || c.count < len(c.reported) {
		c.mu.Unlock()
		return
	}

	c.resolveLocked(zero, &AggregateError{
		Reason: ErrAllFailed,
		Errors: c.collected(),
	})
	c.mu.Unlock()
	c.notify()
}

// expire fires when the overall timeout elapses
func (c *Coordinator[T]) expire() {
	c.mu.Lock()

	if c.resolved {
		c.mu.Unlock()
		return
	}

	var zero T
	c.resolveLocked(zero, &AggregateError{
		Reason: ErrTimeout,
		Errors: c.collected(),
	})
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator[T]) collected() []error {
	errs := make([]error, len(c.errs))
	copy(errs, c.errs)
	return errs
}

// resolveLocked records the outcome. Must be called with the lock held and
// only while unresolved.
func (c *Coordinator[T]) resolveLocked(value T, err error) {
	c.resolved = true
	c.result = value
	c.err = err

	if c.timer != nil {
		c.timer.Stop()
	}
}

// notify publishes the outcome. It runs outside the lock so that the resolve
// hook can call back into the coordinator.
func (c *Coordinator[T]) notify() {
	close(c.done)

	if c.onResolve != nil {
		c.onResolve(c.result, c.err)
	}
}

// Done is closed once the coordinator has resolved
func (c *Coordinator[T]) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome. It is only meaningful after Done is closed;
// before that it returns the zero value and a nil error.
func (c *Coordinator[T]) Result() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.result, c.err
}

// Wait blocks until the coordinator resolves or ctx is done
func (c *Coordinator[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Drain blocks until every dispatched probe has returned. It does not
// interrupt them.
func (c *Coordinator[T]) Drain() {
	c.wg.Wait()
}

// SpanAttributes describes the coordinator's current state for tracing
func (c *Coordinator[T]) SpanAttributes() []attribute.KeyValue {
	c.mu.Lock()
	defer c.mu.Unlock()

	return []attribute.KeyValue{
		attribute.Int("cloudmeta.coordination.expected", len(c.probes)),
		attribute.Int("cloudmeta.coordination.reported", c.count),
		attribute.Int("cloudmeta.coordination.errors", len(c.errs)),
		attribute.Bool("cloudmeta.coordination.resolved", c.resolved),
	}
}

// RecordOnSpan adds the coordinator's state to the span
func (c *Coordinator[T]) RecordOnSpan(span trace.Span) {
	span.SetAttributes(c.SpanAttributes()...)
}
