package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/internal/ai"
	"backend/internal/config"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(&config.GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "gemini-2.0-flash",
		MaxRetries: 1,
	})
	require.NoError(t, err)
	return client, srv
}

func TestGenerate_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "Her birthday is June 3rd."}]},
				"finishReason": "STOP"
			}]
		}`))
	})

	res, err := client.Generate(context.Background(), "when is her birthday", ai.GenerationOptions{
		Temperature: 0.2,
		MaxTokens:   400,
		TopP:        0.7,
	})
	require.NoError(t, err)
	require.Equal(t, ai.OutcomeSuccess, res.Outcome)
	require.Equal(t, "Her birthday is June 3rd.", res.Text)
}

func TestGenerate_Truncated(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "Partial answer that ran ou"}]},
				"finishReason": "MAX_TOKENS"
			}]
		}`))
	})

	res, err := client.Generate(context.Background(), "q", ai.GenerationOptions{})
	require.NoError(t, err)
	require.Equal(t, ai.OutcomeTruncated, res.Outcome)
	require.Equal(t, "Partial answer that ran ou", res.Text)
}

func TestGenerate_Blocked(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback": {"blockReason": "SAFETY"}}`))
	})

	res, err := client.Generate(context.Background(), "q", ai.GenerationOptions{})
	require.NoError(t, err)
	require.Equal(t, ai.OutcomeBlocked, res.Outcome)
	require.Equal(t, "SAFETY", res.BlockReason)
}

func TestGenerate_EmptyCandidates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	})

	res, err := client.Generate(context.Background(), "q", ai.GenerationOptions{})
	require.NoError(t, err)
	require.Equal(t, ai.OutcomeEmpty, res.Outcome)
}

func TestGenerate_QuotaExceeded(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"status": "RESOURCE_EXHAUSTED"}}`))
	})

	_, err := client.Generate(context.Background(), "q", ai.GenerationOptions{})
	require.Error(t, err)
	require.True(t, ai.IsQuotaError(err))
}

func TestGenerate_ClientErrorNoRetry(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad request"}}`))
	})

	_, err := client.Generate(context.Background(), "q", ai.GenerationOptions{})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
