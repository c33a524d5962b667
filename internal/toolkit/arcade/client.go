// Package arcade is a client for the Arcade hosted tool service: it lists
// tool definitions, executes tools on behalf of a user and drives the
// per-user authorization flow.
package arcade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	defaultRetryMax = 3
	// defaultWait is how long the service may hold an auth status request open.
	defaultWait = 45 * time.Second
)

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	// UserID is the user tools are executed for.
	UserID string
	// Version is reported in the User-Agent header.
	Version string

	RetryMax int
	// AuthWait is the long-poll duration of each auth status request.
	AuthWait time.Duration
	// PollInterval is the pause between auth status requests.
	PollInterval time.Duration

	Logger *zap.Logger
}

// Client talks to the Arcade REST API.
type Client struct {
	http     *retryablehttp.Client
	// once sends requests that must not be repeated, such as tool executions.
	once     *retryablehttp.Client
	baseURL  string
	apiKey   string
	userID   string
	agent    string
	authWait time.Duration
	poll     time.Duration
	logger   *zap.Logger
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("arcade: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("arcade: %s (status %d)", e.Message, e.StatusCode)
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = defaultRetryMax
	if opts.RetryMax > 0 {
		httpClient.RetryMax = opts.RetryMax
	}
	httpClient.RetryWaitMin = 200 * time.Millisecond
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.Logger = &leveledLogger{logger: logger.Sugar()}

	onceClient := retryablehttp.NewClient()
	onceClient.HTTPClient = httpClient.HTTPClient
	onceClient.RetryMax = 0
	onceClient.CheckRetry = noRetry
	onceClient.Logger = httpClient.Logger

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	authWait := opts.AuthWait
	if authWait <= 0 {
		authWait = defaultWait
	}

	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	return &Client{
		http:     httpClient,
		once:     onceClient,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		userID:   opts.UserID,
		agent:    "toolgate/" + version,
		authWait: authWait,
		poll:     poll,
		logger:   logger,
	}
}

// do sends an idempotent request, retrying transient failures.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	return c.send(ctx, c.http, method, path, query, body, out)
}

// doOnce sends a request exactly once. A failed attempt is returned, never resent.
func (c *Client) doOnce(ctx context.Context, method, path string, body any, out any) error {
	return c.send(ctx, c.once, method, path, nil, body, out)
}

func (c *Client) send(ctx context.Context, client *retryablehttp.Client, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("arcade request", zap.String("method", method), zap.String("path", path))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Message
			if apiErr.Message == "" {
				apiErr.Message = payload.Error
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// AuthResponse is the state of an authorization request.
type AuthResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	URL    string   `json:"url"`
	Scopes []string `json:"scopes,omitempty"`
}

// StartAuthorization asks the service whether userID may use toolName,
// starting a grant if they may not.
func (c *Client) StartAuthorization(ctx context.Context, toolName, userID string) (*AuthResponse, error) {
	body := map[string]string{
		"tool_name": toolName,
		"user_id":   userID,
	}

	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/v1/tools/authorize", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to authorize tool '%s': %w", toolName, err)
	}
	return &resp, nil
}

// WaitForCompletion polls the authorization until it leaves the pending
// state or ctx ends.
func (c *Client) WaitForCompletion(ctx context.Context, id string) (*AuthResponse, error) {
	query := url.Values{}
	query.Set("id", id)
	query.Set("wait", strconv.Itoa(int(c.authWait/time.Second)))

	for {
		var resp AuthResponse
		if err := c.do(ctx, http.MethodGet, "/v1/auth/status", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to check authorization status: %w", err)
		}

		switch resp.Status {
		case "completed", "failed":
			return &resp, nil
		}

		c.logger.Debug("authorization still pending", zap.String("id", id))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.poll):
		}
	}
}

// ExecuteResponse is the service's report of a tool execution.
type ExecuteResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Output  struct {
		Value any `json:"value"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"output"`
}

// Execute runs toolName with input on behalf of userID and returns the
// tool's output value.
func (c *Client) Execute(ctx context.Context, toolName string, input map[string]any, userID string) (any, error) {
	if input == nil {
		input = map[string]any{}
	}
	body := map[string]any{
		"tool_name": toolName,
		"input":     input,
		"user_id":   userID,
	}

	var resp ExecuteResponse
	// The tool may have run even when the response is lost or an error, so
	// the request is never resent.
	if err := c.doOnce(ctx, http.MethodPost, "/v1/tools/execute", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to execute tool '%s': %w", toolName, err)
	}

	if resp.Output.Error != nil {
		return nil, fmt.Errorf("tool '%s' failed: %s", toolName, resp.Output.Error.Message)
	}
	if !resp.Success {
		return nil, fmt.Errorf("tool '%s' did not succeed", toolName)
	}
	return resp.Output.Value, nil
}

// noRetry is the CheckRetry policy of the once client.
func noRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, nil
}

// leveledLogger routes retryablehttp's logging into zap.
type leveledLogger struct {
	logger *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}
