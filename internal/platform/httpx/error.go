package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/homequote/api/internal/platform/requestctx"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
	maxFieldLength   = 120
)

// FieldViolation names a request field that failed validation and why.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the JSON error envelope returned by every endpoint.
type Error struct {
	Code       string
	Message    string
	Status     int
	Fields     []FieldViolation
	RetryAfter time.Duration
}

// NewError constructs an Error. A zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, maxCodeLength),
		Message: sanitize(message, maxMessageLength),
		Status:  status,
	}
}

// WithField appends a field violation, used by invalid_quote responses to point at the bad input.
func (e Error) WithField(field, reason string) Error {
	field = sanitize(field, maxFieldLength)
	if field == "" {
		return e
	}
	e.Fields = append(append([]FieldViolation(nil), e.Fields...), FieldViolation{
		Field:  field,
		Reason: sanitize(reason, maxMessageLength),
	})
	return e
}

// WithRetryAfter sets the Retry-After header on throttled or unavailable responses.
func (e Error) WithRetryAfter(d time.Duration) Error {
	if d > 0 {
		e.RetryAfter = d
	}
	return e
}

type envelope struct {
	Error     string           `json:"error"`
	Message   string           `json:"message"`
	Status    int              `json:"status"`
	RequestID string           `json:"request_id,omitempty"`
	TraceID   string           `json:"trace_id,omitempty"`
	Fields    []FieldViolation `json:"fields,omitempty"`
}

// WriteError writes err as JSON, stamping the request and trace ids found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := envelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: sanitize(middleware.GetReqID(ctx), maxCodeLength),
		TraceID:   sanitize(requestctx.TraceID(ctx), 64),
		Fields:    err.Fields,
	}

	if err.RetryAfter > 0 {
		seconds := int(err.RetryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sanitize(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
