package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestAccessMiddlewareJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Configure("debug", "json", &buf)
	assert.Same(t, l, L())

	h := AccessMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http_access", entry["msg"])
	assert.Equal(t, "/v1/runs", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, 15, entry["bytes"])
}

func TestAccessMiddlewareFlushes(t *testing.T) {
	var buf bytes.Buffer
	l := Configure("info", "text", &buf)
	h := AccessMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		_, _ = w.Write([]byte("data: x\n\n"))
		f.Flush()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, rec.Flushed)
	// debug entries are filtered at info
	assert.Empty(t, buf.String())
}
