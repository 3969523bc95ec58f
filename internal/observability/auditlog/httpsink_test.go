package auditlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPSinkValidation(t *testing.T) {
	_, err := NewHTTPSink(HTTPSinkConfig{})
	assert.Error(t, err)

	_, err = NewHTTPSink(HTTPSinkConfig{URL: "ftp://collector:21"})
	assert.Error(t, err)

	_, err = NewHTTPSink(HTTPSinkConfig{URL: "http://collector", SummaryExpr: "not a [valid expr"})
	assert.Error(t, err)
}

func TestHTTPSinkPostsEvent(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	sink, err := NewHTTPSink(HTTPSinkConfig{URL: server.URL})
	require.NoError(t, err)

	err = sink.Emit(context.Background(), Event{
		Table: "exception",
		Op:    OpUpdate,
		Actor: "advisor@example.edu",
		At:    time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, "exception", received.Table)
	assert.Equal(t, OpUpdate, received.Op)
	assert.Equal(t, "advisor@example.edu", received.Actor)
}

func TestHTTPSinkSummaryExpression(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	sink, err := NewHTTPSink(HTTPSinkConfig{
		URL:         server.URL,
		SummaryExpr: `{table: table, op: op}`,
	})
	require.NoError(t, err)

	err = sink.Emit(context.Background(), Event{
		Table: "result",
		Op:    OpActivate,
		After: json.RawMessage(`{"id":"res-1","result_tree":{"huge":"payload"}}`),
	})
	require.NoError(t, err)

	// Only the extracted fields go over the wire.
	assert.Equal(t, map[string]any{"table": "result", "op": "activate"}, body)
}

func TestHTTPSinkNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	sink, err := NewHTTPSink(HTTPSinkConfig{URL: server.URL})
	require.NoError(t, err)

	err = sink.Emit(context.Background(), Event{Table: "result", Op: OpInsert})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestHTTPSinkUnreachable(t *testing.T) {
	sink, err := NewHTTPSink(HTTPSinkConfig{URL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)

	err = sink.Emit(context.Background(), Event{Table: "result", Op: OpInsert})
	assert.Error(t, err)
}
