// internal/llmclient/ollama_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmedic/codemedic/internal/config"
)

func setupOllamaClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOllama
	cfg.Model = "llama3"
	cfg.Endpoint = server.URL

	client, err := NewOllamaClient(cfg, setupTestLogger(t))
	require.NoError(t, err)
	return client
}

func TestNewOllamaClient_Defaults(t *testing.T) {
	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOllama
	cfg.Model = "llama3"
	cfg.Endpoint = ""

	client, err := NewOllamaClient(cfg, setupTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaEndpoint, client.endpoint)

	cfg.Model = ""
	_, err = NewOllamaClient(cfg, setupTestLogger(t))
	assert.Error(t, err)
}

func TestOllamaGenerate_Success(t *testing.T) {
	var gotReq ollamaGenerateRequest
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"model": "llama3", "response": "{\"fixed_code\": \"print(1)\"}", "done": true, "prompt_eval_count": 42, "eval_count": 17}`)
	})

	got, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"fixed_code": "print(1)"}`, got)

	assert.Equal(t, "llama3", gotReq.Model)
	assert.False(t, gotReq.Stream, "repair generation must be non-streaming")
	assert.Equal(t, "json", gotReq.Format, "JSON mode must be requested")
	assert.Equal(t, "System prompt instructions.", gotReq.System)
	assert.Equal(t, "User query.", gotReq.Prompt)
}

func TestOllamaGenerate_ServerErrorField(t *testing.T) {
	var calls atomic.Int32
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error": "model 'llama3' not found"}`)
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, int32(1), calls.Load(), "a structured server error must not be retried")
}

func TestOllamaGenerate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"model": "llama3", "response": "ok", "done": true}`)
	})

	got, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaGenerate_HonorsContextDeadline(t *testing.T) {
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Hang until the client gives up. Drain the body first so the
		// server notices the client disconnect and cancels the request
		// context; otherwise cleanup deadlocks in server.Close.
		io.Copy(io.Discard, r.Body) //nolint:errcheck
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Generate(ctx, createTestRequest())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "a hung server must not stall the call past the context deadline")
}

func TestOllamaPing(t *testing.T) {
	client := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models": []}`)
	})
	assert.NoError(t, client.Ping(context.Background()))

	down := setupOllamaClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.Error(t, down.Ping(context.Background()))
}
