package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"pwsvc/internal/logging"
)

// OpenAIConfig holds OpenAI client settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOpenAIConfig returns the defaults used for the weekly digest.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 2 * time.Minute,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIClient calls the chat completions endpoint in JSON object mode.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger

	maxRetries int
	backoff    time.Duration
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	def := DefaultOpenAIConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.For(logger, logging.CategorySummarize),
		maxRetries: 3,
		backoff:    time.Second,
	}
}

func (c *OpenAIClient) Provider() string { return "openai" }
func (c *OpenAIClient) Model() string    { return c.model }

// CompleteJSON sends prompt as a single user message and returns the JSON answer.
// Rate limits and server errors are retried with exponential backoff.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, prompt string) (Completion, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}
	if c.apiKey == "" {
		return Completion{}, fmt.Errorf("API key not configured")
	}

	startTime := time.Now()
	c.logger.Debug("requesting completion", zap.String("model", c.model), zap.Int("prompt_len", len(prompt)))

	jsonData, err := json.Marshal(openAIRequest{
		Model:          c.model,
		Messages:       []openAIMessage{{Role: "user", Content: prompt}},
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			wait := c.backoff * time.Duration(1<<uint(i-1))
			c.logger.Debug("retrying completion", zap.Int("attempt", i), zap.Duration("wait", wait), zap.Error(lastErr))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Completion{}, fmt.Errorf("completion cancelled: %w", ctx.Err())
			}
		}

		body, status, err := c.post(ctx, jsonData)
		if err != nil {
			if ctx.Err() != nil {
				return Completion{}, fmt.Errorf("request failed: %w", err)
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = fmt.Errorf("API request failed with status %d: %s", status, truncate(body))
			continue
		}
		if status != http.StatusOK {
			return Completion{}, fmt.Errorf("API request failed with status %d: %s", status, truncate(body))
		}

		var resp openAIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return Completion{}, fmt.Errorf("failed to parse response: %w", err)
		}
		if resp.Error != nil {
			return Completion{}, fmt.Errorf("API error: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return Completion{}, ErrEmptyResponse
		}

		out := Completion{
			Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
		c.logger.Info("completion received",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Int("response_len", len(out.Text)))
		return out, nil
	}

	c.logger.Error("max retries exceeded", zap.Duration("elapsed", time.Since(startTime)), zap.Error(lastErr))
	return Completion{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *OpenAIClient) post(ctx context.Context, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
