package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFallsBackToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger for bare context")
	}
	logger := zap.NewExample()
	if Logger(WithLogger(context.Background(), logger)) != logger {
		t.Fatalf("expected stored logger")
	}
}

func TestCallerSlot(t *testing.T) {
	if SetCaller(context.Background(), "user-1") {
		t.Fatalf("expected SetCaller to fail without a slot")
	}

	ctx := WithCallerSlot(context.Background())
	if got := Caller(ctx); got != "" {
		t.Fatalf("expected empty caller, got %q", got)
	}
	child, cancel := context.WithCancel(ctx)
	defer cancel()
	if !SetCaller(child, " user-1 ") {
		t.Fatalf("expected SetCaller to find the slot through a derived context")
	}
	if got := Caller(ctx); got != "user-1" {
		t.Fatalf("expected caller visible on the parent, got %q", got)
	}
}

func TestTraceID(t *testing.T) {
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected empty trace id")
	}
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc123"})
	if got := TraceID(ctx); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}
}
