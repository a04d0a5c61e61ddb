// internal/llmclient/ollama.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/opsmedic/codemedic/api/schemas"
	"github.com/opsmedic/codemedic/internal/config"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// OllamaClient implements schemas.LLMClient against a local Ollama server.
// Generation always runs non-streaming: the repair loop wants one complete
// document to parse, not incremental tokens.
type OllamaClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.LLMConfig
}

var _ schemas.LLMClient = (*OllamaClient)(nil)

// -- Ollama API request/response structures (internal to this file) --

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// NewOllamaClient initializes the client against the configured endpoint,
// defaulting to the standard local Ollama address.
func NewOllamaClient(cfg config.LLMConfig, logger *zap.Logger) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model name is required")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}

	return &OllamaClient{
		endpoint: endpoint,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("llm.ollama"),
	}, nil
}

// Generate runs a single non-streaming completion. Connection failures
// retry with backoff (the local server may still be loading the model);
// a well-formed error response from the server is permanent.
func (c *OllamaClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	payload := ollamaGenerateRequest{
		Model:  c.config.Model,
		Prompt: req.UserPrompt,
		System: req.SystemPrompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Options.Temperature,
			TopP:        c.config.TopP,
			TopK:        c.config.TopK,
			NumPredict:  c.config.MaxTokens,
		},
	}
	if req.Options.ForceJSONFormat {
		payload.Format = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 15 * time.Second

	var responseContent string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(respBody))
			if resp.StatusCode >= http.StatusInternalServerError {
				return err // Transient, retry.
			}
			return backoff.Permanent(err)
		}

		var responsePayload ollamaGenerateResponse
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if responsePayload.Error != "" {
			return backoff.Permanent(fmt.Errorf("ollama API returned error: %s", responsePayload.Error))
		}

		c.logger.Info("LLM generation complete (Ollama)",
			zap.String("model", responsePayload.Model),
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.PromptEvalCount),
			zap.Int("completion_tokens", responsePayload.EvalCount),
		)

		responseContent = responsePayload.Response
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}

	return responseContent, nil
}

// Ping checks the server's model listing endpoint, the cheapest call that
// proves the daemon is up and answering.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama server unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections held by the underlying transport.
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
