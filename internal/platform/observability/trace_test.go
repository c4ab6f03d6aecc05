package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/homequote/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		ok      bool
		sampled bool
		spanHex string
	}{
		{name: "sampled", header: "105445aa7843bc8bf206b12000100000/1;o=1", ok: true, sampled: true, spanHex: "0000000000000001"},
		{name: "not sampled", header: "105445aa7843bc8bf206b12000100000/255;o=0", ok: true, spanHex: "00000000000000ff"},
		{name: "no options", header: "105445aa7843bc8bf206b12000100000/42", ok: true, spanHex: "000000000000002a"},
		{name: "empty", header: ""},
		{name: "short trace id", header: "abc/1;o=1"},
		{name: "hex span id", header: "105445aa7843bc8bf206b12000100000/ff;o=1"},
		{name: "zero span id", header: "105445aa7843bc8bf206b12000100000/0;o=1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, spanCtx, ok := parseCloudTraceContext(tc.header)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if !ok {
				return
			}
			if info.Sampled != tc.sampled || spanCtx.IsSampled() != tc.sampled {
				t.Fatalf("expected sampled=%v, got %v", tc.sampled, info.Sampled)
			}
			if info.SpanID != tc.spanHex {
				t.Fatalf("expected span %s, got %s", tc.spanHex, info.SpanID)
			}
			if !spanCtx.IsRemote() {
				t.Fatalf("expected remote span context")
			}
		})
	}
}

func TestTraceMiddlewareContinuesIncomingTrace(t *testing.T) {
	const traceID = "105445aa7843bc8bf206b12000100000"
	var seen requestctx.TraceInfo
	handler := TraceMiddleware("quotes-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestctx.Trace(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes", nil)
	req.Header.Set(cloudTraceHeader, traceID+"/7;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen.TraceID != traceID {
		t.Fatalf("expected trace %s propagated, got %s", traceID, seen.TraceID)
	}
	if seen.ProjectID != "quotes-prod" {
		t.Fatalf("expected project id on trace info, got %q", seen.ProjectID)
	}
	if got := rr.Header().Get(cloudTraceHeader); !strings.HasPrefix(got, traceID+"/") {
		t.Fatalf("expected response trace header for %s, got %q", traceID, got)
	}
}

func TestFormatCloudTraceHeaderUsesDecimalSpan(t *testing.T) {
	got := formatCloudTraceHeader(requestctx.TraceInfo{
		TraceID: "105445aa7843bc8bf206b12000100000",
		SpanID:  "00000000000000ff",
		Sampled: true,
	})
	if got != "105445aa7843bc8bf206b12000100000/255;o=1" {
		t.Fatalf("unexpected header %q", got)
	}
	if formatCloudTraceHeader(requestctx.TraceInfo{}) != "" {
		t.Fatalf("expected empty header without ids")
	}
}
