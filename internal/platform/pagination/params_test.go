package pagination

import (
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
	if !reflect.DeepEqual(params.Cursor, Cursor{}) {
		t.Fatalf("expected zero cursor, got %#v", params.Cursor)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("pageSize", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("pageSize", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	values := url.Values{}
	values.Set("pageSize", "abc")

	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize got %v", err)
	}

	values.Set("pageSize", "0")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize for zero got %v", err)
	}
}

func TestParsePageToken(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 789, time.FixedZone("JST", 9*3600)), ID: "qt_01hx"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}

	values := url.Values{}
	values.Set("pageToken", token)

	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("expected page token %q got %q", token, params.PageToken)
	}
	if !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) || params.Cursor.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected createdAt %v in UTC got %v", cursor.CreatedAt, params.Cursor.CreatedAt)
	}
	if params.Cursor.ID != "qt_01hx" {
		t.Fatalf("expected cursor id %q got %q", "qt_01hx", params.Cursor.ID)
	}
}

func TestDecodeTokenRejectsIncompleteCursors(t *testing.T) {
	raw := []string{
		`{"createdAt":"2026-02-03T04:05:06Z"}`,
		`{"createdAt":"2026-02-03T04:05:06Z","id":"  "}`,
		`{"id":"qt_01hx"}`,
		`{"createdAt":"not-a-time","id":"qt_01hx"}`,
		`{"createdAt":"2026-02-03T04:05:06Z","id":42}`,
		`{"startAfter":["2026-02-03T04:05:06Z","qt_01hx"]}`,
	}
	for _, body := range raw {
		token := base64.RawURLEncoding.EncodeToString([]byte(body))
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("expected ErrInvalidPageToken for %s got %v", body, err)
		}
	}
}

func TestEncodeTokenRequiresCompleteCursor(t *testing.T) {
	if _, err := EncodeToken(Cursor{ID: "qt_01hx"}); err == nil {
		t.Fatalf("expected error for cursor without createdAt")
	}
}

func TestParseInvalidPageToken(t *testing.T) {
	values := url.Values{}
	values.Set("pageToken", "!!!invalid!!!")

	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestFromRequestReadsQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/quotes?pageSize=7", nil)
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != 7 {
		t.Fatalf("expected page size 7 got %d", params.PageSize)
	}
}

func TestClampPageSize(t *testing.T) {
	cases := map[int]int{
		-3:  DefaultPageSize,
		0:   DefaultPageSize,
		12:  12,
		100: 100,
		101: DefaultMaxPageSize,
	}
	for input, want := range cases {
		if got := ClampPageSize(input); got != want {
			t.Fatalf("ClampPageSize(%d) = %d, want %d", input, got, want)
		}
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for empty cursor, got %q", token)
	}
}
