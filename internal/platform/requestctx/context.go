package requestctx

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
	callerKey struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	if !ok {
		return TraceInfo{}, false
	}
	return info, true
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, ok := Trace(ctx)
	if !ok {
		return ""
	}
	return info.TraceID
}

// callerSlot is shared by pointer so authentication running deeper in the handler chain can
// report the caller back to the request logger that created the slot.
type callerSlot struct {
	mu  sync.Mutex
	uid string
}

// WithCallerSlot reserves room on ctx for the authenticated caller's uid.
func WithCallerSlot(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, &callerSlot{})
}

// SetCaller records the caller uid in the slot reserved by WithCallerSlot. It reports false when
// no slot exists.
func SetCaller(ctx context.Context, uid string) bool {
	if ctx == nil {
		return false
	}
	slot, ok := ctx.Value(callerKey{}).(*callerSlot)
	if !ok || slot == nil {
		return false
	}
	slot.mu.Lock()
	slot.uid = strings.TrimSpace(uid)
	slot.mu.Unlock()
	return true
}

// Caller returns the uid recorded by SetCaller, or "" for anonymous requests.
func Caller(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	slot, ok := ctx.Value(callerKey{}).(*callerSlot)
	if !ok || slot == nil {
		return ""
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.uid
}
