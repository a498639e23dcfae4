// Package idempotency lets clients retry order and booking writes safely by replaying the first
// completed response stored under their Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL bounds how long a key pins its response.
const DefaultTTL = 24 * time.Hour

// State is the outcome of claiming a key.
type State int

const (
	// StateClaimed means the caller now owns the key and must Finish or Abandon it.
	StateClaimed State = iota
	// StateInFlight means an earlier request holds the key and has not finished.
	StateInFlight
	// StateDone means the key already carries a stored response.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateClaimed:
		return "claimed"
	case StateInFlight:
		return "in_flight"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Response is a captured HTTP response.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// Claim is the result of Store.Claim. Response is set only for StateDone.
type Claim struct {
	State    State
	Response Response
}

// Store persists idempotency keys.
type Store interface {
	// Claim takes ownership of key for fingerprint, or reports who holds it.
	Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (Claim, error)
	// Finish stores resp under a key claimed by fingerprint.
	Finish(ctx context.Context, key, fingerprint string, resp Response, ttl time.Duration) error
	// Abandon drops a claim so the next attempt runs the handler again.
	Abandon(ctx context.Context, key, fingerprint string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key belongs to a different request")

// entry is the stored form of a key, shared by every Store implementation.
type entry struct {
	Fingerprint string    `json:"fingerprint"`
	Done        bool      `json:"done"`
	Response    Response  `json:"response,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (e entry) claim() (Claim, error) {
	if e.Done {
		return Claim{State: StateDone, Response: e.Response}, nil
	}
	return Claim{State: StateInFlight}, nil
}

// hopHeaders are never replayed.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Content-Length":      true,
	"Date":                true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// storable copies resp with hop-by-hop headers removed.
func storable(resp Response) Response {
	out := Response{Status: resp.Status}
	if len(resp.Body) > 0 {
		out.Body = append([]byte(nil), resp.Body...)
	}
	for name, values := range resp.Header {
		name = http.CanonicalHeaderKey(name)
		if hopHeaders[name] {
			continue
		}
		if out.Header == nil {
			out.Header = make(http.Header)
		}
		out.Header[name] = append([]string(nil), values...)
	}
	return out
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
