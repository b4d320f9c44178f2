// Package providertest runs fake cloud metadata services for tests. Each
// server only answers its own provider's routes, so pointing every probe at
// the same server looks like a machine in exactly one cloud.
package providertest

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/overmindtech/cloudmeta/providers"
)

// Token is the IMDSv2 session token handed out by NewAWSIMDSv2
const Token = "AQAEAFTNrA4eEGx0AQgJ1arIq_Cc-t4tWt3fB0Hd8RKhXlKc5ccvhg=="

// Options controls how a fake service answers
type Options struct {
	// Document is the body served on success
	Document string
	// Status overrides the status of the document route. Defaults to 200.
	Status int
	// Delay holds the response back, both for the document and the IMDSv2
	// token
	Delay time.Duration
	// TokenStatus overrides the status of the IMDSv2 token route
	TokenStatus int
	// OmitFlavor stops the GCP server from identifying itself with the
	// Metadata-Flavor header
	OmitFlavor bool
}

// Request is what the server saw of one request
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

// Server is a running fake metadata service. It is closed when the test ends.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
}

// NewAWS serves the instance identity document without asking for a token,
// like IMDS does when IMDSv1 is allowed. The token route is not served.
func NewAWS(t testing.TB, opts Options) *Server {
	s := &Server{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+providers.AWSDocumentPath, func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, opts, opts.Document)
	})

	return s.start(t, mux)
}

// NewAWSIMDSv2 serves the instance identity document only to requests that
// carry the session token obtained from PUT /latest/api/token
func NewAWSIMDSv2(t testing.TB, opts Options) *Server {
	s := &Server{}
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /latest/api/token", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)

		ttl := r.Header.Get("X-Aws-Ec2-Metadata-Token-Ttl-Seconds")
		if ttl == "" {
			http.Error(w, "missing token ttl", http.StatusBadRequest)
			return
		}

		if !wait(r, opts.Delay) {
			return
		}

		if opts.TokenStatus != 0 && opts.TokenStatus != http.StatusOK {
			w.WriteHeader(opts.TokenStatus)
			return
		}

		w.Header().Set("X-Aws-Ec2-Metadata-Token-Ttl-Seconds", ttl)
		_, _ = w.Write([]byte(Token))
	})

	mux.HandleFunc("GET "+providers.AWSDocumentPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Aws-Ec2-Metadata-Token") != Token {
			s.record(r)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		s.respond(w, r, opts, opts.Document)
	})

	return s.start(t, mux)
}

// NewAzure serves the instance metadata to requests that carry the Metadata
// header and an api-version
func NewAzure(t testing.TB, opts Options) *Server {
	s := &Server{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+providers.AzureMetadataPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Metadata") != "true" || r.URL.Query().Get("api-version") == "" {
			s.record(r)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Bad request. Required metadata header not specified"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		s.respond(w, r, opts, opts.Document)
	})

	return s.start(t, mux)
}

// NewGCP serves the recursive compute metadata to requests that carry the
// Metadata-Flavor: Google header
func NewGCP(t testing.TB, opts Options) *Server {
	s := &Server{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+providers.GCPMetadataPath, func(w http.ResponseWriter, r *http.Request) {
		if !opts.OmitFlavor {
			w.Header().Set("Metadata-Flavor", "Google")
		}

		if r.Header.Get("Metadata-Flavor") != "Google" || r.URL.Query().Get("recursive") != "true" {
			s.record(r)
			w.WriteHeader(http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		s.respond(w, r, opts, opts.Document)
	})

	return s.start(t, mux)
}

func (s *Server) start(t testing.TB, handler http.Handler) *Server {
	s.Server = httptest.NewServer(handler)
	t.Cleanup(s.Close)

	return s
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, opts Options, body string) {
	s.record(r)

	if !wait(r, opts.Delay) {
		return
	}

	status := opts.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	})
}

// wait sleeps for d unless the client goes away first
func wait(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

// Requests returns every request the server has seen so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make([]Request, len(s.requests))
	copy(requests, s.requests)

	return requests
}

// Endpoint returns the server's address as a provider endpoint
func (s *Server) Endpoint() providers.Endpoint {
	u, err := url.Parse(s.URL)
	if err != nil {
		panic(err)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		panic(err)
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		panic(err)
	}

	return providers.Endpoint{
		Protocol: u.Scheme,
		Host:     host,
		Port:     p,
	}
}
