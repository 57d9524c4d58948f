// Package status implements the best-effort notification sink spec.md §6
// describes: POST a new message for phase-start/phase-complete events,
// PATCH that message's body for live-updating progress, and POST a
// multipart file upload for the final CSVs. Every call is fire-and-forget:
// failures are logged and swallowed, never retried, per spec.md's explicit
// "core treats this as best-effort" interface contract.
//
// Grounded on the plain net/http POST/PATCH calls the teacher's Discord
// dashboard integration in original_source/propertyguru_full_scrape.py's
// docstring describes ("Discord dashboard... PATCH /messages/<id>"); no
// example repo imports a retry-capable HTTP client for this kind of sink,
// and a retrying client would contradict the spec's "never retried"
// requirement outright, so this stays on net/http by design rather than
// reaching for one.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Reporter posts live progress updates to an external notification sink.
// A nil or disabled Reporter's methods are no-ops, so callers never need
// to branch on whether notifications are configured.
type Reporter struct {
	client  *http.Client
	baseURL string
	enabled bool
	log     *zap.Logger
}

// New builds a Reporter. Pass enabled=false (or an empty baseURL) to get a
// Reporter whose methods are no-ops, matching spec.md's NotifyConfig.Enabled
// gate.
func New(baseURL string, enabled bool, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		enabled: enabled && baseURL != "",
		log:     log,
	}
}

// Post sends a new status message and returns its sink-assigned message
// ID (empty on failure). Failures are logged at warn level and swallowed.
func (r *Reporter) Post(ctx context.Context, content string) string {
	if !r.enabled {
		return ""
	}
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		r.log.Warn("status: marshal post body failed", zap.Error(err))
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		r.log.Warn("status: build post request failed", zap.Error(err))
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("status: post failed, continuing without retry", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		r.log.Warn("status: post returned non-2xx, continuing without retry", zap.Int("status", resp.StatusCode))
		return ""
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ""
	}
	return decoded.ID
}

// Patch live-updates a previously posted message's content in place, for
// the dashboard's running-progress edits. Failures are swallowed.
func (r *Reporter) Patch(ctx context.Context, messageID, content string) {
	if !r.enabled || messageID == "" {
		return
	}
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		r.log.Warn("status: marshal patch body failed", zap.Error(err))
		return
	}
	url := fmt.Sprintf("%s/messages/%s", r.baseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		r.log.Warn("status: build patch request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("status: patch failed, continuing without retry", zap.Error(err))
		return
	}
	defer resp.Body.Close()
}

// UploadFile posts a multipart file upload (a finished CSV, typically) to
// the sink. Failures are swallowed.
func (r *Reporter) UploadFile(ctx context.Context, fieldName, filename string, content io.Reader) {
	if !r.enabled {
		return
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(fieldName, filename)
	if err != nil {
		r.log.Warn("status: create multipart part failed", zap.Error(err))
		return
	}
	if _, err := io.Copy(part, content); err != nil {
		r.log.Warn("status: copy file into multipart body failed", zap.Error(err))
		return
	}
	if err := mw.Close(); err != nil {
		r.log.Warn("status: close multipart writer failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, &buf)
	if err != nil {
		r.log.Warn("status: build upload request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("status: upload failed, continuing without retry", zap.Error(err))
		return
	}
	defer resp.Body.Close()
}
