// Package llmclient provides TextGenerator implementations backed by hosted
// LLM APIs, plus a factory and a throttling wrapper enforcing the shared-
// resource discipline the pipeline requires.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/config"
)

const defaultGroqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// GroqClient implements schemas.TextGenerator against the Groq
// chat-completions API (OpenAI-compatible wire format).
type GroqClient struct {
	apiKey     string
	endpoint   string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *zap.Logger
}

// -- Groq API request/response structures (internal to this file) --

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequestPayload struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type groqResponsePayload struct {
	Choices []struct {
		Message      groqMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewGroqClient initializes the client.
func NewGroqClient(cfg config.LLMConfig, logger *zap.Logger) (*GroqClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGroqEndpoint
	}

	return &GroqClient{
		apiKey:    cfg.APIKey,
		endpoint:  endpoint,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("llm_client.groq"),
	}, nil
}

// Generate sends the prompts to the Groq API and returns the generated
// content, retrying transient failures with exponential backoff.
func (c *GroqClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	payload := c.buildRequestPayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshalling request payload: %v", schemas.ErrGeneration, err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseContent string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload groqResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(responsePayload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("groq API returned no choices"))
		}

		choice := responsePayload.Choices[0]
		if choice.Message.Content == "" {
			return fmt.Errorf("groq API returned empty content (finish reason: %s)", choice.FinishReason)
		}

		c.logger.Debug("LLM generation complete (Groq)",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.Usage.PromptTokens),
			zap.Int("completion_tokens", responsePayload.Usage.CompletionTokens),
			zap.Int("total_tokens", responsePayload.Usage.TotalTokens),
		)

		responseContent = choice.Message.Content
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", schemas.ErrGeneration, err)
	}

	return responseContent, nil
}

func (c *GroqClient) buildRequestPayload(req schemas.GenerationRequest) groqRequestPayload {
	messages := make([]groqMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, groqMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, groqMessage{Role: "user", Content: req.UserPrompt})

	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	return groqRequestPayload{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Options.Temperature,
		MaxTokens:   maxTokens,
	}
}

func (c *GroqClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Groq API returned error status", zap.Int("status", statusCode), zap.ByteString("response", body))
	err := fmt.Errorf("groq API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient, retry.
	default:
		return backoff.Permanent(err)
	}
}
