package handlers

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

func TestRequestLoggerEmitsStructuredAccessLine(t *testing.T) {
	var logBuffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuffer, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.WriteHeader(http.StatusTeapot)
		responseWriter.Write([]byte("short and stout"))
	}))

	request := httptest.NewRequest(http.MethodGet, "/api/projects/abc", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	// the wrapped writer must be transparent to the handler's response.
	assert.Equal(t, http.StatusTeapot, recorder.Code)
	assert.Equal(t, "short and stout", recorder.Body.String())

	var logged struct {
		Msg    string  `json:"msg"`
		Method string  `json:"method"`
		Path   string  `json:"path"`
		Status int     `json:"status"`
		Bytes  float64 `json:"bytes"`
	}
	require.NoError(t, json.Unmarshal(logBuffer.Bytes(), &logged), "log line: %s", logBuffer.String())
	assert.Equal(t, "http request", logged.Msg)
	assert.Equal(t, http.MethodGet, logged.Method)
	assert.Equal(t, "/api/projects/abc", logged.Path)
	assert.Equal(t, http.StatusTeapot, logged.Status)
	assert.Equal(t, float64(len("short and stout")), logged.Bytes)
}
