package providers

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint is where a provider's metadata service can be reached
type Endpoint struct {
	Protocol string `validate:"oneof=http https"`
	Host     string `validate:"required,hostname_rfc1123|ip"`
	Port     int    `validate:"min=1,max=65535"`
}

// BaseURL returns the endpoint as protocol://host:port
func (e Endpoint) BaseURL() string {
	u := url.URL{
		Scheme: e.Protocol,
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
	}

	return u.String()
}

// URL returns the full URL of a path on this endpoint, with an optional query
func (e Endpoint) URL(path string, query url.Values) string {
	u := url.URL{
		Scheme:   e.Protocol,
		Host:     net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
		Path:     path,
		RawQuery: query.Encode(),
	}

	return u.String()
}

func (e Endpoint) String() string {
	return e.BaseURL()
}

// ParseEndpoint parses an endpoint written as protocol://host[:port]. When the
// port is omitted the protocol's default port is used. Paths, queries and
// credentials are rejected since every provider has fixed paths.
func ParseEndpoint(s string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid metadata endpoint %q: %w", s, err)
	}

	e := Endpoint{
		Protocol: strings.ToLower(u.Scheme),
		Host:     u.Hostname(),
	}

	switch e.Protocol {
	case "http":
		e.Port = 80
	case "https":
		e.Port = 443
	default:
		return Endpoint{}, fmt.Errorf("invalid metadata endpoint %q: protocol must be http or https", s)
	}

	if e.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid metadata endpoint %q: missing host", s)
	}

	if u.User != nil || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return Endpoint{}, fmt.Errorf("invalid metadata endpoint %q: only protocol, host and port may be set", s)
	}

	if p := u.Port(); p != "" {
		e.Port, err = strconv.Atoi(p)
		if err != nil || e.Port < 1 || e.Port > 65535 {
			return Endpoint{}, fmt.Errorf("invalid metadata endpoint %q: bad port %q", s, p)
		}
	}

	return e, nil
}
