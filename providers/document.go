package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
)

// maxDocumentSize bounds how much of a metadata document is read. Real
// documents are a few kilobytes.
const maxDocumentSize = 1 << 20

var errDocumentTooLarge = fmt.Errorf("metadata document is larger than %v bytes", maxDocumentSize)

// scalar is a document field that ends up as a string in the record whatever
// its JSON type. Numbers keep their exact digits, which matters for GCP ids
// that are larger than a float64 can represent. Objects and arrays are
// ignored.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch v := v.(type) {
	case string:
		*s = scalar(v)
	case json.Number:
		*s = scalar(normalizeNumber(v))
	case bool:
		*s = scalar(strconv.FormatBool(v))
	default:
		*s = ""
	}

	return nil
}

func (s scalar) String() string {
	return string(s)
}

// maxExpandedBits bounds the integers that exponent form is expanded into.
// Anything larger keeps its literal text, so a short literal such as 1e9999999
// can't turn into millions of digits.
const maxExpandedBits = 256

// normalizeNumber renders a JSON number as decimal digits. Integers written
// in exponent form are expanded when they fit in maxExpandedBits, anything
// else keeps its literal text.
func normalizeNumber(n json.Number) string {
	lit := n.String()

	if !strings.ContainsAny(lit, ".eE") {
		if i, ok := new(big.Int).SetString(lit, 10); ok {
			return i.String()
		}

		return lit
	}

	f, ok := new(big.Float).SetPrec(512).SetString(lit)
	if !ok || f.IsInf() || !f.IsInt() || f.MantExp(nil) > maxExpandedBits {
		return lit
	}

	i, _ := f.Int(nil)

	return i.String()
}

// readDocument reads a metadata response body, refusing anything suspiciously
// large
func readDocument(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading metadata document: %w", err)
	}

	if len(b) > maxDocumentSize {
		return nil, errDocumentTooLarge
	}

	return b, nil
}

// lastSegment returns what follows the final slash, or s when there is none
func lastSegment(s string) string {
	return s[strings.LastIndex(s, "/")+1:]
}

// unmarshalDocument decodes a metadata document into v, describing the
// failure in terms of the provider's document
func unmarshalDocument(b []byte, v any, what string) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parsing %v: %w", what, err)
	}

	return nil
}
