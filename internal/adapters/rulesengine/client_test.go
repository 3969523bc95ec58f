package rulesengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	assert.Error(t, err)

	_, err = NewClient(ClientOptions{BaseURL: "ftp://engine:21"})
	assert.Error(t, err)

	client, err := NewClient(ClientOptions{BaseURL: "http://engine:8080/"})
	require.NoError(t, err)
	assert.Equal(t, "http://engine:8080", client.baseURL)
}

func TestClientEvaluate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/evaluate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req model.EvaluateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "major/csci", req.AreaCode)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.Evaluation{
			Tree:    model.SatisfactionNode{Type: "area", Satisfied: true},
			Rank:    18,
			MaxRank: 20,
		})
	})

	eval, err := client.Evaluate(context.Background(), &model.EvaluateRequest{
		AreaCode: "major/csci",
		Catalog:  "2024-25",
		Student:  json.RawMessage(`{"courses":[]}`),
	})
	require.NoError(t, err)
	assert.True(t, eval.Tree.Satisfied)
	assert.InDelta(t, 18.0, eval.Rank, 0.001)
}

func TestClientCandidates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/candidates", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clbids":["c-1","c-2"]}`))
	})

	clbids, err := client.Candidates(context.Background(), &model.CandidateRequest{
		Clause:  json.RawMessage(`{"subject":"CSCI"}`),
		Catalog: "2024-25",
		Student: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1", "c-2"}, clbids)
}

func TestClientRejectionIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"unknown area code"}`))
	})

	_, err := client.Evaluate(context.Background(), &model.EvaluateRequest{AreaCode: "bogus"})
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
	assert.Contains(t, err.Error(), "unknown area code")
}

func TestClientServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Evaluate(context.Background(), &model.EvaluateRequest{AreaCode: "major/csci"})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestClientUnreachableIsTransient(t *testing.T) {
	client, err := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = client.Evaluate(context.Background(), &model.EvaluateRequest{AreaCode: "major/csci"})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestClientCanceledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Evaluate(ctx, &model.EvaluateRequest{AreaCode: "major/csci"})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestClientMalformedResponseIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Candidates(context.Background(), &model.CandidateRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
}

func TestClientNilRequests(t *testing.T) {
	client, err := NewClient(ClientOptions{BaseURL: "http://engine:8080"})
	require.NoError(t, err)

	_, err = client.Evaluate(context.Background(), nil)
	assert.True(t, apperrors.IsPermanent(err))

	_, err = client.Candidates(context.Background(), nil)
	assert.True(t, apperrors.IsPermanent(err))
}
