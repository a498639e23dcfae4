package pagination

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageSize != DefaultPageSize || params.PageToken != "" {
		t.Fatalf("unexpected params %+v", params)
	}

	params, _ = Parse(url.Values{}, Options{DefaultPageSize: 500, MaxPageSize: 30})
	if params.PageSize != 30 {
		t.Fatalf("expected default to be capped at 30, got %d", params.PageSize)
	}
}

func TestParsePageSize(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		err  bool
	}{
		{raw: "20", want: 20},
		{raw: " 7 ", want: 7},
		{raw: "1000", want: DefaultMaxPageSize},
		{raw: "0", err: true},
		{raw: "-3", err: true},
		{raw: "ten", err: true},
	}
	for _, tc := range cases {
		params, err := Parse(url.Values{"pageSize": {tc.raw}}, Options{})
		if tc.err {
			if !errors.Is(err, ErrInvalidPageSize) {
				t.Fatalf("%q: expected ErrInvalidPageSize, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil || params.PageSize != tc.want {
			t.Fatalf("%q: expected %d, got %d (%v)", tc.raw, tc.want, params.PageSize, err)
		}
	}
}

func TestParsePageToken(t *testing.T) {
	token, err := EncodeCursor(Cursor{CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), ID: "ord-9"})
	if err != nil {
		t.Fatalf("EncodeCursor: %v", err)
	}
	params, err := Parse(url.Values{"pageToken": {token}}, Options{})
	if err != nil || params.PageToken != token {
		t.Fatalf("expected token to round trip, got %+v %v", params, err)
	}

	if _, err := Parse(url.Values{"pageToken": {"not-a-cursor"}}, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestCursorRoundTripKeepsNanoseconds(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 123456789, time.FixedZone("ICT", 7*3600))
	token, err := EncodeCursor(Cursor{CreatedAt: at, ID: "bk-1"})
	if err != nil {
		t.Fatalf("EncodeCursor: %v", err)
	}
	got, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !got.CreatedAt.Equal(at) || got.ID != "bk-1" {
		t.Fatalf("unexpected cursor %+v", got)
	}
}

func TestEncodeCursorRequiresPosition(t *testing.T) {
	if _, err := EncodeCursor(Cursor{ID: "x"}); err == nil {
		t.Fatalf("expected error for zero createdAt")
	}
	if _, err := EncodeCursor(Cursor{CreatedAt: time.Now()}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(0) != DefaultPageSize || Clamp(-1) != DefaultPageSize {
		t.Fatalf("expected default for non-positive sizes")
	}
	if Clamp(5) != 5 || Clamp(1000) != DefaultMaxPageSize {
		t.Fatalf("unexpected clamp results")
	}
}

func TestFromRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/?pageSize=20", nil)
	params, err := FromRequest(req, Options{})
	if err != nil || params.PageSize != 20 {
		t.Fatalf("unexpected %+v %v", params, err)
	}
	if _, err := FromRequest(nil, Options{}); err == nil {
		t.Fatalf("expected error for nil request")
	}
}
