// Package client talks to the assistant backend over HTTP.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/killallgit/composer/pkg/assistants"
	"github.com/killallgit/composer/pkg/chat"
	"github.com/killallgit/composer/pkg/logger"
	"github.com/killallgit/composer/pkg/request"
)

// StatusAuthRedirect is the status the backend uses to ask for a new login.
const StatusAuthRedirect = 499

const (
	assistantsPath = "/admin/assistant"
	maxErrorBody   = 4096
)

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

type Client struct {
	baseURL string
	// httpClient has no overall timeout; streams are bounded by their
	// context.
	httpClient   *http.Client
	apiTimeout   time.Duration
	onAuthFailed func(status int)
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPITimeout bounds non-streaming calls such as the assistant listing.
func WithAPITimeout(d time.Duration) Option {
	return func(c *Client) {
		c.apiTimeout = d
	}
}

// WithAuthRedirect registers fn to run whenever the backend answers 499.
func WithAuthRedirect(fn func(status int)) Option {
	return func(c *Client) {
		c.onAuthFailed = fn
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		apiTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream posts req and returns the streamed response body. Cancelling ctx
// aborts the connection. The caller must close the body.
func (c *Client) Stream(ctx context.Context, req chat.ChatRequest) (io.ReadCloser, error) {
	log := logger.WithComponent("client").With("assistant", req.AssistantName)

	body, err := request.Build(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+body.Path, body.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", body.ContentType)
	httpReq.ContentLength = body.Size

	log.Debug("Sending chat request", "path", body.Path, "multipart", body.Multipart, "bytes", body.Size)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if err := c.checkStatus(resp); err != nil {
		resp.Body.Close()
		log.Error("Chat request failed", "status_code", resp.StatusCode)
		return nil, err
	}

	return resp.Body, nil
}

// ListAssistants fetches the assistants the backend serves.
func (c *Client) ListAssistants(ctx context.Context) ([]assistants.Assistant, error) {
	if c.apiTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.apiTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+assistantsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get assistants: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", catalogError(resp.StatusCode), err)
	}

	var list []assistants.Assistant
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode assistants response: %w", err)
	}
	return list, nil
}

// checkStatus returns a *StatusError for non-2xx responses and fires the
// auth redirect callback on 499.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == StatusAuthRedirect && c.onAuthFailed != nil {
		c.onAuthFailed(resp.StatusCode)
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       extractErrorMessage(raw),
	}
}

// extractErrorMessage prefers a JSON {"error"} or {"message"} field over
// the raw body.
func extractErrorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

func catalogError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return assistants.ErrUnauthorized
	case http.StatusForbidden:
		return assistants.ErrForbidden
	case http.StatusServiceUnavailable:
		return assistants.ErrUnavailable
	default:
		return assistants.ErrServer
	}
}
