//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"harvester/internal/browser"
	"harvester/internal/proxy"
)

// These tests launch a real browser binary and are gated behind the
// "integration" build tag, matching the teacher's own browser integration
// tests. They exercise the Fetcher against a local httptest server rather
// than the live target site.

func TestFetcher_FetchReturnsEmbeddedPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><script id="payload">{"hello":"world"}</script></body></html>`)
	}))
	defer ts.Close()

	f, err := browser.Open(context.Background(), browser.LaunchOptions{Headless: true})
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	text, fetchErr := f.Fetch(ctx, ts.URL, "#payload", 10*time.Second, 10*time.Second)
	require.Nil(t, fetchErr)
	require.JSONEq(t, `{"hello":"world"}`, text)
}

func TestFetcher_MissingSelectorYieldsMissingPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><p>no payload here</p></body></html>`)
	}))
	defer ts.Close()

	f, err := browser.Open(context.Background(), browser.LaunchOptions{Headless: true})
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	_, fetchErr := f.Fetch(ctx, ts.URL, "#payload", 10*time.Second, 2*time.Second)
	require.NotNil(t, fetchErr)
	require.Equal(t, browser.ErrMissingPayload, fetchErr.Kind)
}

func TestFetcher_ProbeEgressIP(t *testing.T) {
	f, err := browser.Open(context.Background(), browser.LaunchOptions{
		Headless: true,
		Proxy:    proxy.Record{},
	})
	require.NoError(t, err)
	defer f.Close()

	ip, err := f.ProbeEgressIP(context.Background(), 15*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, ip)
}

func TestDetectHostIP_ReturnsNonEmptyIP(t *testing.T) {
	ip, err := browser.DetectHostIP(context.Background(), 15*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, ip)
}
