package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cursor positions a newest-first listing after the last item returned. Listings order by
// creation time then ID, both descending.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

type cursorWire struct {
	CreatedAt string `json:"c"`
	ID        string `json:"i"`
}

// EncodeCursor renders c as an opaque URL-safe token.
func EncodeCursor(c Cursor) (string, error) {
	if c.ID == "" || c.CreatedAt.IsZero() {
		return "", fmt.Errorf("pagination: cursor needs createdAt and id")
	}
	data, err := json.Marshal(cursorWire{CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano), ID: c.ID})
	if err != nil {
		return "", fmt.Errorf("pagination: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a token produced by EncodeCursor. Any malformed token wraps
// ErrInvalidPageToken.
func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var wire cursorWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if wire.ID == "" {
		return Cursor{}, fmt.Errorf("%w: missing id", ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, wire.CreatedAt)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return Cursor{CreatedAt: createdAt, ID: wire.ID}, nil
}
