package phase

import (
	"time"

	"harvester/internal/browser"
	"harvester/internal/config"
	"harvester/internal/worker"
)

// The helpers below adapt config.Config's YAML-facing sub-structs (plain
// ints/strings, nil-able pointers) to the concrete types worker.Config and
// browser.LaunchOptions want, tolerating a nil sub-struct by falling back
// to spec.md's documented defaults rather than panicking.

func retryPolicyFrom(r *config.RetryConfig) worker.RetryPolicy {
	if r == nil {
		return worker.DefaultRetryPolicy()
	}
	return worker.RetryPolicy{
		Attempt1DelayMin: time.Duration(r.Attempt1DelayMinSeconds) * time.Second,
		Attempt1DelayMax: time.Duration(r.Attempt1DelayMaxSeconds) * time.Second,
		Attempt2DelayMin: time.Duration(r.Attempt2DelayMinSeconds) * time.Second,
		Attempt2DelayMax: time.Duration(r.Attempt2DelayMaxSeconds) * time.Second,
	}
}

func browserBinaryPath(b *config.BrowserConfig) string {
	if b == nil {
		return ""
	}
	return b.BinaryPath
}

func browserHeadless(b *config.BrowserConfig) bool {
	return b == nil || b.Headless
}

func browserSelector(b *config.BrowserConfig) string {
	if b == nil || b.PayloadSelector == "" {
		return "script#__NEXT_DATA__"
	}
	return b.PayloadSelector
}

func browserPageLoad(b *config.BrowserConfig) int {
	if b == nil || b.PageLoadTimeoutSeconds == 0 {
		return 45
	}
	return b.PageLoadTimeoutSeconds
}

func browserElementWait(b *config.BrowserConfig) int {
	if b == nil || b.ElementWaitSeconds == 0 {
		return 25
	}
	return b.ElementWaitSeconds
}

func durationSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func authModeFrom(mode string) browser.AuthMode {
	if mode == "extension" {
		return browser.ModeExtension
	}
	return browser.ModeWhitelist
}
