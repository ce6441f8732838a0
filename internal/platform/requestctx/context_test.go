package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatal("expected noop logger without injection")
	}
	logger := zap.NewExample()
	if got := Logger(WithLogger(context.Background(), logger)); got != logger {
		t.Fatal("expected injected logger")
	}
}

func TestTraceAndOrderAccess(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", SpanID: "def", Sampled: true})
	if TraceID(ctx) != "abc" {
		t.Fatalf("unexpected trace id %q", TraceID(ctx))
	}
	if _, ok := OrderAccess(ctx); ok {
		t.Fatal("expected no order access")
	}
	ctx = WithOrderAccess(ctx, "ord_123")
	if orderID, ok := OrderAccess(ctx); !ok || orderID != "ord_123" {
		t.Fatalf("unexpected order access %q %v", orderID, ok)
	}
	if _, ok := OrderAccess(WithOrderAccess(context.Background(), "")); ok {
		t.Fatal("empty order id must not grant access")
	}
}
