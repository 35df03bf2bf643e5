package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lamim/folioforge/internal/config"
	"github.com/lamim/folioforge/internal/metrics"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests
	DefaultHTTPTimeout = 180 * time.Second
	// maxErrorBody caps how much of an error body ends up in messages
	maxErrorBody = 512
)

// Client sends single chat completion requests to OpenAI-compatible endpoints.
// Retries are the caller's concern; every failure comes back as *APIError.
type Client struct {
	httpClient      *http.Client
	rateLimiterPool *RateLimiterPool
	metrics         *metrics.Collector
	logger          *slog.Logger
}

// NewClient creates a new API client. collector may be nil.
func NewClient(logger *slog.Logger, collector *metrics.Collector) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: DefaultHTTPTimeout,
		},
		rateLimiterPool: NewRateLimiterPool(logger),
		metrics:         collector,
		logger:          logger,
	}
}

// SetHTTPTimeout overrides the request timeout (0 = none)
func (c *Client) SetHTTPTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// ChatCompletion sends one chat completion request to the specified model
func (c *Client) ChatCompletion(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	messages []Message,
	jsonMode bool,
) (*ChatCompletionResponse, error) {
	modelID := fmt.Sprintf("%s:%s", modelCfg.BaseURL, modelCfg.ModelName)

	waitStart := time.Now()
	if err := c.rateLimiterPool.Wait(ctx, modelID, modelCfg.RateLimitPerMinute); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	c.metrics.RecordLimiterWait("model", time.Since(waitStart))

	req := ChatCompletionRequest{
		Model:       modelCfg.ModelName,
		Messages:    messages,
		Temperature: modelCfg.Temperature,
		TopP:        modelCfg.TopP,
		MaxTokens:   modelCfg.MaxOutputTokens,
		N:           1,
	}
	if jsonMode && modelCfg.UseJSONMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, modelCfg.BaseURL, apiKey, req)
	c.metrics.RecordAPIRequest(modelCfg.ModelName, time.Since(start), err == nil)
	return resp, err
}

func (c *Client) doRequest(
	ctx context.Context,
	baseURL string,
	apiKey string,
	req ChatCompletionRequest,
) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &APIError{Kind: KindInvalidRequest, Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Kind: KindInvalidRequest, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Cancellation is not a transport failure
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, &APIError{
			Kind:    KindTransient,
			Message: fmt.Sprintf("request failed: %v", err),
		}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &APIError{
			Kind:       KindTransient,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			StatusCode: httpResp.StatusCode,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		apiErr := &APIError{
			Kind:       ClassifyStatus(httpResp.StatusCode),
			StatusCode: httpResp.StatusCode,
			RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now()),
		}
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			apiErr.Message = errResp.Error.Message
			apiErr.Type = errResp.Error.Type
		} else {
			msg := string(respBody)
			if len(msg) > maxErrorBody {
				msg = msg[:maxErrorBody]
			}
			apiErr.Message = fmt.Sprintf("API request failed with status %d: %s", httpResp.StatusCode, msg)
		}
		c.logger.Debug("API request failed",
			"endpoint", endpoint,
			"status", httpResp.StatusCode,
			"kind", apiErr.Kind)
		return nil, apiErr
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: fmt.Sprintf("failed to parse response: %v", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &APIError{Kind: KindTransient, Message: "no choices returned in response"}
	}

	return &resp, nil
}

// ClassifyStatus maps an HTTP status to a failure kind
func ClassifyStatus(statusCode int) FailureKind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusConflict,
		statusCode >= 500:
		return KindTransient
	default:
		// 400, 401, 403, 404, 422 and friends will fail the same way again
		return KindInvalidRequest
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
