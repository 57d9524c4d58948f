package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestReporter_PostReturnsMessageID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer ts.Close()

	r := New(ts.URL, true, zaptest.NewLogger(t))
	id := r.Post(context.Background(), "stage A started")
	assert.Equal(t, "msg-1", id)
}

func TestReporter_DisabledIsNoOp(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	r := New(ts.URL, false, nil)
	id := r.Post(context.Background(), "should never be sent")
	assert.Empty(t, id)
	assert.False(t, called, "a disabled Reporter must never hit the network")
}

func TestReporter_PostFailureIsSwallowed(t *testing.T) {
	r := New("http://127.0.0.1:1", true, nil) // nothing listening
	assert.NotPanics(t, func() {
		id := r.Post(context.Background(), "content")
		assert.Empty(t, id)
	})
}

func TestReporter_PatchHitsMessagesPath(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPatch, r.Method)
	}))
	defer ts.Close()

	r := New(ts.URL, true, nil)
	r.Patch(context.Background(), "msg-1", "50% complete")
	assert.True(t, strings.HasSuffix(gotPath, "/messages/msg-1"))
}

func TestReporter_UploadFileSendsMultipart(t *testing.T) {
	var gotContentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
	}))
	defer ts.Close()

	r := New(ts.URL, true, nil)
	r.UploadFile(context.Background(), "file", "adlist.csv", strings.NewReader("a,b,c\n1,2,3\n"))
	assert.Contains(t, gotContentType, "multipart/form-data")
}
