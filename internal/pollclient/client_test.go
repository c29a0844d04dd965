package pollclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientUploadSendsMultipartFile(t *testing.T) {
	var gotName, gotType, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"jobId": "job-42"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "post.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	id, err := New(srv.URL+"/", WithAPIKey("secret")).Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "job-42", id)
	assert.Equal(t, "post.pdf", gotName)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, "%PDF-1.4", string(gotBody))
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestClientUploadSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnsupportedMediaType)
		_, _ = w.Write([]byte(`{"error":"unsupported media type"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	_, err := New(srv.URL).Upload(context.Background(), path)
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusUnsupportedMediaType, respErr.Code)
	assert.Equal(t, "unsupported media type", respErr.Message)
	assert.True(t, respErr.Permanent())
}

func TestClientJobDecodesView(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/job/job-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"jobId":"job-1","status":"done","createdAt":"2026-10-01T12:00:00Z",
			"result":{"text":"Hello World","suggestionsStatus":"done","suggestions":[]}}`))
	}))
	defer srv.Close()

	view, err := New(srv.URL).Job(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", view.JobID)
	require.NotNil(t, view.Result)
	assert.Equal(t, "Hello World", view.Result.Text)
	assert.True(t, view.Settled())
}

func TestWatcherAgainstServer(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		polls++
		body := `{"jobId":"j","status":"processing"}`
		switch {
		case polls >= 4:
			body = `{"jobId":"j","status":"done","result":{"text":"t","suggestionsStatus":"done","suggestions":["a"]}}`
		case polls >= 2:
			body = `{"jobId":"j","status":"processing","result":{"text":"t","suggestionsStatus":"pending"}}`
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	w := NewWatcher(New(srv.URL))
	w.Interval = 1
	var signals []Signal
	w.OnSignal = func(s Signal, _ JobView) { signals = append(signals, s) }

	final, err := w.Watch(context.Background(), "j", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, polls)
	assert.Equal(t, []string{"a"}, final.Result.Suggestions)
	assert.Equal(t, []Signal{SignalTextExtracted, SignalSuggestionsReady}, signals)
}
