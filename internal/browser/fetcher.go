// Package browser implements the Fetcher contract spec.md §4.3 defines:
// given (url, user-agent, proxy), load the page, wait for a known DOM
// element, and return the text of the embedded JSON payload it holds, or a
// typed transient error. One Fetcher owns exactly one browser instance,
// matching the Worker's one-browser-per-worker lifecycle.
//
// Grounded on internal/browser/session_manager.go's rod launcher/Connect
// pattern in the teacher repo: Bin/Headless/flag-setting launch, then
// rod.New().ControlURL().Connect(). Proxy-server and extension flags are
// new — the teacher's launcher never configured a proxy — added here
// using go-rod's launcher.Proxy and launcher.Set flag API in the same idiom.
package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"harvester/internal/proxy"
)

// ErrorKind enumerates the transient failure kinds spec.md §4.3 names.
type ErrorKind string

const (
	ErrTimeout        ErrorKind = "timeout"
	ErrMissingPayload ErrorKind = "missing_payload"
	ErrTransport      ErrorKind = "transport"
	ErrBlocked        ErrorKind = "blocked"
)

// FetchError is the Fetcher's typed error, switched on by Kind in the
// Worker's recovery path rather than matched against error strings.
type FetchError struct {
	Kind    ErrorKind
	Message string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch: %s: %s", e.Kind, e.Message)
}

// AuthMode selects how proxy credentials reach the browser, per spec.md §6.
type AuthMode string

const (
	ModeExtension AuthMode = "extension" // injected unpacked Chrome extension
	ModeWhitelist AuthMode = "whitelist" // IP-whitelisted, no credentials supplied
)

// LaunchOptions configures one browser session.
type LaunchOptions struct {
	BinaryPath   string
	Headless     bool
	UserAgent    string
	Proxy        proxy.Record
	AuthMode     AuthMode
	ExtensionDir string // used only when AuthMode == ModeExtension
}

// Fetcher owns exactly one browser + one page for the duration of a
// worker's session. Workers tear one down and build a fresh one on proxy
// rotation, per spec.md §4.2's recovery path.
type Fetcher struct {
	browser *rod.Browser
	page    *rod.Page
	ua      string
}

// Open launches a new browser process (optionally proxied) and opens one
// blank page, ready for Fetch calls.
func Open(ctx context.Context, opts LaunchOptions) (*Fetcher, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.BinaryPath != "" {
		l = l.Bin(opts.BinaryPath)
	}
	if opts.Proxy.Host != "" {
		l = l.Proxy(opts.Proxy.Addr())
	}
	if opts.AuthMode == ModeExtension && opts.ExtensionDir != "" {
		l = l.Set("load-extension", opts.ExtensionDir)
		l = l.Set("disable-extensions-except", opts.ExtensionDir)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, &FetchError{Kind: ErrTransport, Message: fmt.Sprintf("launch: %v", err)}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, &FetchError{Kind: ErrTransport, Message: fmt.Sprintf("connect: %v", err)}
	}

	if opts.AuthMode == ModeExtension && opts.Proxy.Username != "" {
		go browser.HandleAuth(opts.Proxy.Username, opts.Proxy.Password)()
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, &FetchError{Kind: ErrTransport, Message: fmt.Sprintf("open page: %v", err)}
	}
	if opts.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent})
	}

	return &Fetcher{browser: browser, page: page, ua: opts.UserAgent}, nil
}

// Close tears down the page and browser process.
func (f *Fetcher) Close() error {
	if f == nil || f.browser == nil {
		return nil
	}
	return f.browser.Close()
}

// Fetch navigates to url, waits up to elementWait for selector to appear,
// and returns its text content iff it begins with "{". Page-load timeout
// is enforced by pageLoadTimeout; element-wait by elementWait, per
// spec.md §4.3's 45s/25s defaults (callers pass the configured values).
func (f *Fetcher) Fetch(ctx context.Context, url, selector string, pageLoadTimeout, elementWait time.Duration) (string, *FetchError) {
	navCtx, cancel := context.WithTimeout(ctx, pageLoadTimeout)
	defer cancel()

	err := f.page.Context(navCtx).Timeout(pageLoadTimeout).Navigate(url)
	if err != nil {
		if navCtx.Err() != nil {
			return "", &FetchError{Kind: ErrTimeout, Message: "page load timed out"}
		}
		return "", &FetchError{Kind: ErrTransport, Message: err.Error()}
	}

	elCtx, elCancel := context.WithTimeout(ctx, elementWait)
	defer elCancel()
	el, err := f.page.Context(elCtx).Timeout(elementWait).Element(selector)
	if err != nil {
		if elCtx.Err() != nil {
			return "", &FetchError{Kind: ErrTimeout, Message: "element wait timed out"}
		}
		return "", f.missingPayloadOrBlocked(err.Error())
	}

	text, err := el.Text()
	if err != nil {
		return "", f.missingPayloadOrBlocked(err.Error())
	}
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return "", f.missingPayloadOrBlocked("payload element text does not begin with '{'")
	}
	return text, nil
}

// missingPayloadOrBlocked classifies a missing-payload condition more
// precisely by scanning the loaded page for anti-bot interstitial
// signals: a page that loaded successfully but holds a CAPTCHA/WAF
// challenge instead of the expected element is a blocked fetch, not a
// genuine missing_payload, even though the Worker's current tiered-retry
// handling treats both the same way (spec.md §4.3/§7). DetectBlock
// failures are swallowed — if the page can't even be inspected, fall
// back to the plain missing_payload classification.
func (f *Fetcher) missingPayloadOrBlocked(detail string) *FetchError {
	if verdict, err := DetectBlock(f.page); err == nil && verdict.Blocked {
		return &FetchError{Kind: ErrBlocked, Message: strings.Join(verdict.Signals, "; ")}
	}
	return &FetchError{Kind: ErrMissingPayload, Message: detail}
}

// ipEchoURL is a neutral, low-traffic endpoint that reflects the caller's
// egress IP as plain text, used by the Worker's proxy-verification probe.
const ipEchoURL = "https://api.ipify.org"

// ProbeEgressIP navigates the Fetcher's page to a neutral IP-echo endpoint
// and returns the observed egress IP, for the Worker's post-launch proxy
// verification step (spec.md §4.2).
func (f *Fetcher) ProbeEgressIP(ctx context.Context, timeout time.Duration) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := f.page.Context(probeCtx).Timeout(timeout).Navigate(ipEchoURL); err != nil {
		return "", fmt.Errorf("browser: ip-echo probe navigate: %w", err)
	}
	body, err := f.page.Context(probeCtx).Element("body")
	if err != nil {
		return "", fmt.Errorf("browser: ip-echo probe read: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return "", fmt.Errorf("browser: ip-echo probe text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// DetectHostIP makes a direct (non-proxied) request to the same IP-echo
// endpoint ProbeEgressIP uses through the browser, giving the Worker's
// proxy-effectiveness check something to compare against: "did the
// request actually leave through a different IP than the host's own."
// Best-effort — callers treat a returned error as "verification
// unavailable" and skip the check, per spec.md §4.2's "proceed anyway"
// fallback.
func DetectHostIP(ctx context.Context, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ipEchoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// PickUserAgent rotates through a small fixed pool of common desktop UAs,
// indexed by an externally-maintained counter so each proxy rotation gets
// a freshly-picked string rather than reusing the prior session's.
func PickUserAgent(idx int) string {
	pool := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	}
	if idx < 0 {
		idx = -idx
	}
	return pool[idx%len(pool)]
}

// FormatProxyLabel builds the short label used in audit entries and log
// lines, e.g. "proxy-3 (198.51.100.4:8080)".
func FormatProxyLabel(p proxy.Record) string {
	return "proxy-" + strconv.Itoa(p.Index) + " (" + p.Addr() + ")"
}
