package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"

	"github.com/google/uuid"
)

type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	tokens  domain.TokenStore
	log     logger.Logger
}

func NewBaseClient(baseURL string, timeout time.Duration, tokens domain.TokenStore, log logger.Logger) *BaseClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		headers: make(map[string]string),
		tokens:  tokens,
		log:     log,
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// token returns the stored bearer token, or "" when none is stored.
func (c *BaseClient) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.GetItem(ctx, domain.AuthTokenKey)
	if err != nil {
		c.log.Warn("Token lookup failed", "error", err)
		return ""
	}
	return token
}

type request struct {
	op       string
	method   string
	endpoint string
	body     interface{}
	// requireAuth fails the call without a network request when no token is stored.
	requireAuth bool
	authMessage string
	failMessage string
}

// MakeRequest sends one JSON request and decodes a 2xx body into out.
func (c *BaseClient) MakeRequest(ctx context.Context, r request, out interface{}) error {
	token := c.token(ctx)
	if r.requireAuth && token == "" {
		return domain.NewAuthError(r.op, r.authMessage, 0)
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", r.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", r.op, err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	c.log.Debug("API request", "op", r.op, "method", r.method, "endpoint", r.endpoint, "request_id", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewConnectionError(r.op, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewConnectionError(r.op, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := errorMessage(responseBody, r.failMessage)
		c.log.Warn("API returned error status",
			"op", r.op, "status", resp.StatusCode, "message", message, "request_id", requestID)
		if resp.StatusCode == http.StatusUnauthorized {
			return domain.NewAuthError(r.op, message, resp.StatusCode)
		}
		return domain.NewServerRejection(r.op, message, resp.StatusCode)
	}

	if out == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", r.op, err)
	}
	return nil
}

// errorMessage extracts the server's "message" field, which is either a
// string or a list of strings, falling back to the given default.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Message) == 0 {
		return fallback
	}

	var single string
	if err := json.Unmarshal(payload.Message, &single); err == nil && single != "" {
		return single
	}
	var many []string
	if err := json.Unmarshal(payload.Message, &many); err == nil && len(many) > 0 {
		return strings.Join(many, ", ")
	}
	return fallback
}

// IsStatus reports whether err is a rejection carrying the given HTTP status.
func IsStatus(err error, status int) bool {
	var se *domain.SyncError
	return errors.As(err, &se) && se.StatusCode == status
}
