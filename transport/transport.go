// Package transport issues single HTTP requests to link-local metadata services
// with two independent timers: a connect timeout that bounds how long it takes
// to get a connection, and a response timeout that bounds how long the server
// may stay silent once the request has been written.
//
// The two timers fail with different errors so that callers can tell an
// unreachable service (nothing listening, packets dropped) from one that is
// present but slow. Both errors match ErrTimeout as well as their own sentinel:
//
//	resp, err := client.Request(ctx, http.MethodGet, url, nil)
//	switch {
//	case errors.Is(err, transport.ErrConnectTimeout):
//		// nothing there
//	case errors.Is(err, transport.ErrResponseTimeout):
//		// something there, but it didn't answer in time
//	}
//
// The transport never retries and never reuses connections between requests.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrTimeout is matched by every timeout raised by this package
	ErrTimeout = errors.New("metadata request timed out")
	// ErrConnectTimeout means no connection could be established in time
	ErrConnectTimeout = errors.New("could not connect to metadata server")
	// ErrResponseTimeout means the server was reached but went quiet for too long
	ErrResponseTimeout = errors.New("metadata server did not respond in time")
)

// Phase is the part of the request that a timer was guarding
type Phase int

const (
	PhaseConnect Phase = iota
	PhaseResponse
)

func (p Phase) String() string {
	switch p {
	case PhaseConnect:
		return "connect"
	case PhaseResponse:
		return "response"
	default:
		return "unknown"
	}
}

// TimeoutError is returned when one of the two timers fires before the request
// completes
type TimeoutError struct {
	Phase Phase
	// Limit is the duration of the timer that fired
	Limit time.Duration
	URL   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v: %v timeout of %v exceeded for %v", e.sentinel(), e.Phase, e.Limit, e.URL)
}

func (e *TimeoutError) sentinel() error {
	if e.Phase == PhaseConnect {
		return ErrConnectTimeout
	}
	return ErrResponseTimeout
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == e.sentinel()
}

// Timeout makes TimeoutError satisfy net.Error
func (e *TimeoutError) Timeout() bool { return true }

// Temporary makes TimeoutError satisfy net.Error
func (e *TimeoutError) Temporary() bool { return false }

var _ net.Error = (*TimeoutError)(nil)

// Options configures the two timers. A zero duration disables that timer.
type Options struct {
	// ConnectTimeout bounds the time from asking for a connection (including
	// DNS resolution) until the connection is established
	ConnectTimeout time.Duration
	// ResponseTimeout bounds the time from the request being written until the
	// first byte of the response arrives, and then each gap between body reads
	ResponseTimeout time.Duration
	// DialContext overrides how connections are made. If nil a plain
	// net.Dialer is used.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Client is an HTTP client for metadata services. It implements the Do method
// expected by the AWS and Azure SDKs so it can be handed to them directly.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a client that applies the given timers to every request
func NewClient(options Options) *Client {
	dial := options.DialContext
	if dial == nil {
		dial = (&net.Dialer{
			KeepAlive: -1,
		}).DialContext
	}

	base := &http.Transport{
		// metadata services live on link-local addresses and must never be
		// reached through a proxy
		Proxy:              nil,
		DialContext:        dial,
		DisableKeepAlives:  true,
		DisableCompression: true,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(&timeoutRoundTripper{
				base:    base,
				options: options,
			}),
			// metadata services never legitimately redirect
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Do sends the request. Errors caused by either timer are returned as
// *TimeoutError, possibly wrapped by *url.Error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Request builds and sends a request with the given headers. The caller must
// close the response body.
func (c *Client) Request(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.Do(req)
}

// timeoutRoundTripper arms and disarms the two timers around a single round
// trip using httptrace hooks, and cancels the request when either fires
type timeoutRoundTripper struct {
	base    http.RoundTripper
	options Options
}

func (t *timeoutRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancelCause(req.Context())

	timers := &requestTimers{
		cancel:  cancel,
		options: t.options,
		url:     req.URL.Redacted(),
	}

	trace := &httptrace.ClientTrace{
		GetConn: func(string) {
			timers.arm(PhaseConnect)
		},
		GotConn: func(httptrace.GotConnInfo) {
			timers.disarm(PhaseConnect)
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				timers.wroteRequest()
			}
		},
		GotFirstResponseByte: func() {
			timers.gotFirstByte()
		},
	}

	resp, err := t.base.RoundTrip(req.WithContext(httptrace.WithClientTrace(ctx, trace)))
	if err != nil {
		timers.stop()
		err = timers.translate(req.Context(), ctx, err)
		cancel(nil)
		return nil, err
	}

	resp.Body = &idleTimeoutBody{
		body:    resp.Body,
		timers:  timers,
		parent:  req.Context(),
		ctx:     ctx,
		cancel:  cancel,
		enabled: t.options.ResponseTimeout > 0,
	}

	return resp, nil
}

// requestTimers holds the state for one request. Hooks can fire on transport
// goroutines, so everything is behind a mutex.
type requestTimers struct {
	mu      sync.Mutex
	cancel  context.CancelCauseFunc
	options Options
	url     string
	connect *time.Timer
	resp    *time.Timer
	stopped bool
	// the server may answer before the write hook has run
	responded bool
}

func (r *requestTimers) duration(phase Phase) time.Duration {
	if phase == PhaseConnect {
		return r.options.ConnectTimeout
	}
	return r.options.ResponseTimeout
}

func (r *requestTimers) slot(phase Phase) **time.Timer {
	if phase == PhaseConnect {
		return &r.connect
	}
	return &r.resp
}

// arm starts (or restarts) the timer for a phase
func (r *requestTimers) arm(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.armLocked(phase)
}

func (r *requestTimers) armLocked(phase Phase) {
	d := r.duration(phase)
	if d <= 0 || r.stopped {
		return
	}

	timer := r.slot(phase)
	if *timer != nil {
		(*timer).Stop()
	}
	*timer = time.AfterFunc(d, func() {
		r.cancel(&TimeoutError{
			Phase: phase,
			Limit: d,
			URL:   r.url,
		})
	})
}

func (r *requestTimers) wroteRequest() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.responded {
		r.armLocked(PhaseResponse)
	}
}

func (r *requestTimers) gotFirstByte() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.responded = true
	r.disarmLocked(PhaseResponse)
}

func (r *requestTimers) disarm(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disarmLocked(phase)
}

func (r *requestTimers) disarmLocked(phase Phase) {
	timer := r.slot(phase)
	if *timer != nil {
		(*timer).Stop()
		*timer = nil
	}
}

func (r *requestTimers) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for _, timer := range []*time.Timer{r.connect, r.resp} {
		if timer != nil {
			timer.Stop()
		}
	}
}

// translate replaces the generic cancellation error that net/http raises after
// a timer aborted the request with the timeout that caused it. If the caller's
// own context ended, its error wins.
func (r *requestTimers) translate(parent, ctx context.Context, err error) error {
	if parent.Err() != nil {
		return err
	}

	var timeoutErr *TimeoutError
	if errors.As(context.Cause(ctx), &timeoutErr) {
		return timeoutErr
	}

	return err
}

// idleTimeoutBody re-arms the response timer around every read so that a
// server that sends headers and then stalls still gets cut off
type idleTimeoutBody struct {
	body    io.ReadCloser
	timers  *requestTimers
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelCauseFunc
	enabled bool
	once    sync.Once
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	if b.enabled {
		b.timers.arm(PhaseResponse)
	}

	n, err := b.body.Read(p)

	if b.enabled {
		b.timers.disarm(PhaseResponse)
	}

	if err != nil && !errors.Is(err, io.EOF) {
		err = b.timers.translate(b.parent, b.ctx, err)
	}

	return n, err
}

func (b *idleTimeoutBody) Close() error {
	err := b.body.Close()
	b.once.Do(func() {
		b.timers.stop()
		b.cancel(nil)
	})
	return err
}
