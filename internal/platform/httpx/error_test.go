package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/homequote/api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})

	rr := httptest.NewRecorder()
	WriteError(ctx, rr, NewError("invalid_quote", "state is required\n", http.StatusBadRequest).
		WithField("state", "is required").
		WithField("", "ignored"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body struct {
		Error     string           `json:"error"`
		Message   string           `json:"message"`
		Status    int              `json:"status"`
		RequestID string           `json:"request_id"`
		TraceID   string           `json:"trace_id"`
		Fields    []FieldViolation `json:"fields"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "invalid_quote" || body.Message != "state is required" || body.Status != http.StatusBadRequest {
		t.Fatalf("unexpected envelope %+v", body)
	}
	if body.RequestID != "req-1" || body.TraceID != "trace-1" {
		t.Fatalf("expected request and trace ids, got %+v", body)
	}
	if len(body.Fields) != 1 || body.Fields[0] != (FieldViolation{Field: "state", Reason: "is required"}) {
		t.Fatalf("unexpected fields %+v", body.Fields)
	}
	if rr.Header().Get("Retry-After") != "" {
		t.Fatalf("expected no Retry-After header")
	}
}

func TestWriteErrorRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, NewError("rate_limited", "slow down", http.StatusTooManyRequests).WithRetryAfter(1500*time.Millisecond))

	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["fields"]; ok {
		t.Fatalf("expected fields to be omitted, got %v", body["fields"])
	}
	if _, ok := body["request_id"]; ok {
		t.Fatalf("expected request_id to be omitted without a request id")
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("boom", "", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}
