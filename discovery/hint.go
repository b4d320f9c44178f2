package discovery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/overmindtech/cloudmeta/metadata"
)

// ErrInvalidHint is returned by ParseHint for unknown values
var ErrInvalidHint = errors.New("invalid cloud provider hint")

// Hint narrows down which providers are probed
type Hint string

const (
	// HintAuto probes every supported provider
	HintAuto Hint = "auto"
	// HintAWS probes AWS with and without an IMDSv2 session token
	HintAWS = Hint(metadata.AWS)
	// HintAzure probes Azure only
	HintAzure = Hint(metadata.Azure)
	// HintGCP probes GCP only
	HintGCP = Hint(metadata.GCP)
	// HintNone disables discovery. No request is made.
	HintNone Hint = "none"
)

func (h Hint) String() string {
	return string(h)
}

// ParseHint parses a hint, ignoring case and surrounding spaces. "false" and
// the empty string both mean HintNone, and any provider that ParseProvider
// accepts narrows discovery down to that provider.
func ParseHint(s string) (Hint, error) {
	switch h := Hint(strings.ToLower(strings.TrimSpace(s))); h {
	case HintAuto, HintNone:
		return h, nil
	case "", "false":
		return HintNone, nil
	}

	p, err := metadata.ParseProvider(s)
	if err != nil {
		return "", fmt.Errorf("%w %q, must be one of %v", ErrInvalidHint, s, strings.Join(HintValues(), ", "))
	}

	return Hint(p), nil
}

// HintValues lists every hint, one per supported provider plus auto and none
func HintValues() []string {
	values := []string{HintAuto.String()}
	for _, p := range metadata.Providers {
		values = append(values, p.String())
	}

	return append(values, HintNone.String())
}
