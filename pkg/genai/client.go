package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrNotConfigured = errors.New("generative API key not configured")
	ErrBlocked       = errors.New("response blocked by safety filters")
	ErrEmptyResponse = errors.New("empty response")
)

// Client 生成式文本 API HTTP 客户端
type Client struct {
	mu         sync.RWMutex
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
	config     *Config
}

// NewClient 创建客户端
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}

	return &Client{
		apiKey: config.APIKey,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		config: config,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// SetAPIKey replaces the API key; an empty key is ignored.
func (c *Client) SetAPIKey(key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

// MaskedKey returns the key with all but the last four characters hidden.
func (c *Client) MaskedKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.apiKey) <= 4 {
		return strings.Repeat("*", len(c.apiKey))
	}
	return strings.Repeat("*", len(c.apiKey)-4) + c.apiKey[len(c.apiKey)-4:]
}

func (c *Client) Model() string { return c.config.Model }

// Generate sends history followed by prompt and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string, history []Content) (string, error) {
	contents := make([]Content, 0, len(history)+1)
	contents = append(contents, history...)
	contents = append(contents, UserTurn(prompt))

	resp, err := c.GenerateContent(ctx, &GenerateRequest{
		Contents:       contents,
		SafetySettings: DefaultSafetySettings(),
	})
	if err != nil {
		return "", err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == "SAFETY" {
			return "", ErrBlocked
		}
		return "", ErrEmptyResponse
	}
	return text, nil
}

// GenerateContent calls models/{model}:generateContent.
func (c *Client) GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	tracer := otel.Tracer("support360/genai")
	ctx, span := tracer.Start(ctx, "genai.GenerateContent")
	span.SetAttributes(attribute.String("model", c.config.Model), attribute.Int("turns", len(req.Contents)))
	defer span.End()

	var resp GenerateResponse
	endpoint := fmt.Sprintf("/models/%s:generateContent", c.config.Model)
	if err := c.doRequestWithRetry(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.UsageMetadata != nil {
		span.SetAttributes(attribute.Int("tokens.total", resp.UsageMetadata.TotalTokenCount))
	}
	return &resp, nil
}

func (c *Client) createRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + endpoint

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.mu.RLock()
	key := c.apiKey
	c.mu.RUnlock()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)
	req.Header.Set("User-Agent", "Support360-GenAI-Client/1.0")
	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("GenAI API Request: %s %s", req.Method, req.URL.Path)
	c.logger.Debugf("GenAI API Response: %d (%d bytes)", resp.StatusCode, len(body))

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			apiErr.Message = errResp.Error.Message
			apiErr.Status = errResp.Error.Status
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doRequestWithRetry(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Warnf("GenAI API retry attempt %d/%d", attempt, c.config.MaxRetries)
		}

		req, err := c.createRequest(ctx, method, endpoint, body)
		if err != nil {
			return err
		}

		if err := c.doRequest(req, result); err != nil {
			lastErr = err
			if attempt < c.config.MaxRetries && shouldRetry(err) {
				continue
			}
			break
		}
		return nil
	}

	return lastErr
}

// shouldRetry retries transport failures, throttling and 5xx responses.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
