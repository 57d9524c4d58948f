package browser

import (
	"context"
	"testing"
	"time"

	"harvester/internal/proxy"
)

func TestDetectHostIP_CancelledContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DetectHostIP(ctx, time.Second); err == nil {
		t.Fatal("expected an error from an already-cancelled context")
	}
}

func TestFormatProxyLabel(t *testing.T) {
	rec := proxy.Record{Index: 3, Host: "10.0.0.1", Port: 8080}
	label := FormatProxyLabel(rec)
	if label != "proxy-3 (10.0.0.1:8080)" {
		t.Fatalf("unexpected label: %s", label)
	}
}
