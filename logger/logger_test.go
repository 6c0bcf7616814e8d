package logger

import (
	"os"
	"sync/atomic"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestWithField(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test").WithField("mint", "abc123")
	if v, ok := entry.Entry.Data["mint"]; !ok || v != "abc123" {
		t.Fatalf("field not set: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestWithEnv(t *testing.T) {
	os.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestFlowCounters(t *testing.T) {
	beforeFetches := atomic.LoadInt64(&sourceFetches)
	beforeEvents := atomic.LoadInt64(&socketEvents)
	beforeTicks := atomic.LoadInt64(&streamTicks)
	beforeReconnects := atomic.LoadInt64(&socketReconnects)

	IncrementSourceFetch("pumpfun", 128)
	IncrementSocketEvent(64)
	IncrementStreamTick(256)
	IncrementSocketReconnect()
	SetStreamClients(3)
	SetTokensAggregated(42)

	if got := atomic.LoadInt64(&sourceFetches); got != beforeFetches+1 {
		t.Fatalf("source fetch counter not incremented: %d", got)
	}
	if got := atomic.LoadInt64(&socketEvents); got != beforeEvents+1 {
		t.Fatalf("socket event counter not incremented: %d", got)
	}
	if got := atomic.LoadInt64(&streamTicks); got != beforeTicks+1 {
		t.Fatalf("stream tick counter not incremented: %d", got)
	}
	if got := atomic.LoadInt64(&socketReconnects); got != beforeReconnects+1 {
		t.Fatalf("socket reconnect counter not incremented: %d", got)
	}
	if got := atomic.LoadInt64(&streamClients); got != 3 {
		t.Fatalf("stream client gauge not set: %d", got)
	}
	if got := atomic.LoadInt64(&tokensAggregated); got != 42 {
		t.Fatalf("tokens aggregated gauge not set: %d", got)
	}

	v, ok := flows.Load("source_pumpfun")
	if !ok {
		t.Fatal("expected flow stats for source_pumpfun")
	}
	fs := v.(*flowStat)
	if atomic.LoadInt64(&fs.bytes) < 128 {
		t.Fatalf("flow bytes not recorded: %d", atomic.LoadInt64(&fs.bytes))
	}
}

func TestWarnAndErrorClassification(t *testing.T) {
	beforeWarnSource := atomic.LoadInt64(&warnsSource)
	beforeErrSocket := atomic.LoadInt64(&errorsSocket)
	beforeErrStream := atomic.LoadInt64(&errorsStream)

	recordWarn("pumpfun_source")
	recordError("socket_ingester")
	recordError("stream_publisher")
	recordError("unrelated")

	if got := atomic.LoadInt64(&warnsSource); got != beforeWarnSource+1 {
		t.Fatalf("source warn not classified: %d", got)
	}
	if got := atomic.LoadInt64(&errorsSocket); got != beforeErrSocket+1 {
		t.Fatalf("socket error not classified: %d", got)
	}
	if got := atomic.LoadInt64(&errorsStream); got != beforeErrStream+1 {
		t.Fatalf("stream error not classified: %d", got)
	}
}
