// Package token reads the payload of the bearer tokens issued by the village
// API. It never verifies signatures or expiry; the API does that on every
// request. The payload is only used to check that a stored token belongs to
// the stored profile.
package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned for tokens that are not header.payload.signature.
	ErrMalformed = errors.New("token: malformed")
	// ErrNoSubject is returned when the payload carries no integer data.id.
	ErrNoSubject = errors.New("token: payload has no data.id")
)

// Payload is the decoded middle segment of a token.
type Payload struct {
	SubjectID int64
	Claims    map[string]any
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode extracts the payload of raw and the id stored under data.id.
func Decode(raw string) (*Payload, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %d segments", ErrMalformed, len(parts))
	}

	// Accept both the URL-safe and the standard alphabet.
	seg := strings.NewReplacer("+", "-", "/", "_").Replace(parts[1])
	body, err := segmentParser.DecodeSegment(seg)
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding: %v", ErrMalformed, err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var claims map[string]any
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: payload json: %v", ErrMalformed, err)
	}

	data, ok := claims["data"].(map[string]any)
	if !ok {
		return nil, ErrNoSubject
	}
	id, ok := CoerceID(data["id"])
	if !ok {
		return nil, ErrNoSubject
	}

	return &Payload{SubjectID: id, Claims: claims}, nil
}

// CoerceID converts a JSON id (number or numeric string) to an integer.
// Fractions are truncated.
func CoerceID(v any) (int64, bool) {
	switch id := v.(type) {
	case json.Number:
		if i, err := id.Int64(); err == nil {
			return i, true
		}
		f, err := id.Float64()
		if err != nil {
			return 0, false
		}
		return truncate(f)
	case float64:
		return truncate(id)
	case int:
		return int64(id), true
	case int64:
		return id, true
	case string:
		s := strings.TrimSpace(id)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return truncate(f)
		}
	}
	return 0, false
}

func truncate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}
