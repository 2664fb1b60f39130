// Package llm provides the language-model collaborators: structured metadata
// extraction from source text and arbitration of conflicting source values.
// Both speak to any OpenAI-compatible chat endpoint through Completer, so the
// rest of the pipeline is agnostic to the provider answering.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// Request is one chat completion.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// JSON asks the provider for a JSON object response.
	JSON bool
}

// Completer turns a prompt into model text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config configures the HTTP client and collaborators.
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	// Endpoint is the full chat completions URL; empty takes the provider
	// default.
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	// APIKeyEnv names the environment variable read when APIKey is empty.
	APIKeyEnv  string        `mapstructure:"api_key_env"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// CallDelay is the minimum spacing between calls.
	CallDelay time.Duration `mapstructure:"call_delay"`

	ExtractTemperature float64 `mapstructure:"extract_temperature"`
	ArbiterTemperature float64 `mapstructure:"arbiter_temperature"`
	// MaxTextChars truncates source text sent for extraction.
	MaxTextChars int `mapstructure:"max_text_chars"`

	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DefaultConfig returns a disabled OpenAI configuration with the standard
// timeouts and temperatures.
func DefaultConfig() Config {
	return Config{
		Provider:           "openai",
		Model:              "gpt-4o-mini",
		Timeout:            60 * time.Second,
		MaxRetries:         3,
		RetryBackoff:       time.Second,
		CallDelay:          500 * time.Millisecond,
		ExtractTemperature: 0.3,
		ArbiterTemperature: 0.2,
		MaxTextChars:       15000,
		CacheTTL:           7 * 24 * time.Hour,
	}
}

var providerEndpoints = map[string]struct{ endpoint, keyEnv string }{
	"openai":     {"https://api.openai.com/v1/chat/completions", "OPENAI_API_KEY"},
	"openrouter": {"https://openrouter.ai/api/v1/chat/completions", "OPENROUTER_API_KEY"},
	"deepseek":   {"https://api.deepseek.com/v1/chat/completions", "DEEPSEEK_API_KEY"},
	"ollama":     {"http://localhost:11434/v1/chat/completions", ""},
}

// ParseModelFlag splits "provider/model" at the first slash; the model part
// may itself contain slashes and colons.
func ParseModelFlag(flag string) (provider, model string, err error) {
	i := strings.Index(flag, "/")
	if i <= 0 || i == len(flag)-1 {
		return "", "", errors.Newf(errors.ErrCodeBadRequest, "invalid model %q: expected provider/model", flag)
	}
	return flag[:i], flag[i+1:], nil
}

// Resolve fills the endpoint and API key from the provider defaults and the
// environment.
func (c Config) Resolve() (Config, error) {
	p, known := providerEndpoints[c.Provider]
	if c.Endpoint == "" {
		if !known {
			return c, errors.Newf(errors.ErrCodeLLMNotConfigured, "unknown provider %q and no endpoint set", c.Provider)
		}
		c.Endpoint = p.endpoint
	}
	if c.APIKeyEnv == "" && known {
		c.APIKeyEnv = p.keyEnv
	}
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.APIKey == "" && c.Provider != "ollama" {
		return c, errors.Newf(errors.ErrCodeLLMNotConfigured, "no API key for provider %q", c.Provider).
			WithDetail("set " + c.APIKeyEnv)
	}
	if c.Model == "" {
		return c, errors.New(errors.ErrCodeLLMNotConfigured, "model is required")
	}
	return c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTP client
// ─────────────────────────────────────────────────────────────────────────────

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// HTTPError is a non-200 response.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, truncate(e.Body, 200))
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is an OpenAI-compatible chat client with retry.
type Client struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient resolves cfg and builds a Client.
func NewClient(cfg Config, logger logging.Logger, opts ...ClientOption) (*Client, error) {
	cfg, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("llm"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends req, retrying transport errors, 429s and 5xx responses with
// exponential backoff.  A Retry-After header overrides the backoff.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{Model: c.cfg.Model, Temperature: req.Temperature}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "marshal chat request")
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		text, err := c.send(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err

		httpErr, isHTTP := err.(*HTTPError)
		if isHTTP && !httpErr.retryable() {
			break
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		wait := c.cfg.RetryBackoff << attempt
		if isHTTP && httpErr.RetryAfter > 0 {
			wait = httpErr.RetryAfter
		}
		c.logger.Debug("retrying chat completion",
			logging.Int("attempt", attempt+1), logging.Duration("wait", wait), logging.Err(err))

		select {
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "chat completion cancelled")
		case <-time.After(wait):
		}
	}

	if httpErr, ok := lastErr.(*HTTPError); ok && httpErr.StatusCode == http.StatusTooManyRequests {
		return "", errors.Wrap(lastErr, errors.ErrCodeLLMRateLimited, "rate limited")
	}
	return "", errors.Wrap(lastErr, errors.ErrCodeLLMRequestFailed,
		fmt.Sprintf("chat completion failed after %d attempts", c.cfg.MaxRetries+1))
}

func (c *Client) send(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Provider == "openrouter" {
		req.Header.Set("X-Title", "Regolith-Intelligence")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty chat response")
	}
	c.logger.Debug("chat completion",
		logging.String("model", c.cfg.Model),
		logging.Int("prompt_tokens", out.Usage.PromptTokens),
		logging.Int("completion_tokens", out.Usage.CompletionTokens))
	return out.Choices[0].Message.Content, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
