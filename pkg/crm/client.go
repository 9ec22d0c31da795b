// Package crm is a REST client for the CRM backend. It implements the
// message gateway, contact store and AI provider the built-in actions use.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/crmflow/pkg/protocol"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

var (
	ErrBaseURLRequired = errors.New("crm base url is required")
	ErrServerError     = errors.New("crm server error")
	ErrRequestRejected = errors.New("crm rejected request")
)

type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// WithMaxRetries sets how many times a request failing with a 5xx status or a
// transport error is retried.
func WithMaxRetries(retries uint64) Option {
	return func(c *Client) { c.maxRetries = retries }
}

type Client struct {
	baseURL    *url.URL
	token      string
	http       *http.Client
	maxRetries uint64
	logger     *slog.Logger
}

var (
	_ protocol.MessageGateway = (*Client)(nil)
	_ protocol.ContactStore   = (*Client)(nil)
	_ protocol.AIProvider     = (*Client)(nil)
)

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid crm base url: %w", err)
	}

	client := &Client{
		baseURL:    parsed,
		http:       &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		logger:     logger.With("module", "crm_client", "base_url", parsed.Host),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *Client) SendMessage(ctx context.Context, recipient, content string) (protocol.DeliveryResult, error) {
	var result protocol.DeliveryResult

	err := c.do(ctx, http.MethodPost, "/messages", map[string]any{
		"recipient": recipient,
		"content":   content,
	}, &result)

	return result, err
}

func (c *Client) UpdateContact(ctx context.Context, contactID string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/contacts/"+url.PathEscape(contactID), fields, nil)
}

func (c *Client) CreateTask(ctx context.Context, task protocol.Task) (string, error) {
	var created struct {
		ID string `json:"id"`
	}

	err := c.do(ctx, http.MethodPost, "/tasks", task, &created)

	return created.ID, err
}

func (c *Client) AdjustLeadScore(ctx context.Context, contactID string, delta int) (int, error) {
	var adjusted struct {
		Score int `json:"score"`
	}

	err := c.do(ctx, http.MethodPost, "/contacts/"+url.PathEscape(contactID)+"/lead-score", map[string]any{
		"delta": delta,
	}, &adjusted)

	return adjusted.Score, err
}

func (c *Client) RunTask(ctx context.Context, taskType string, input map[string]any) (map[string]any, error) {
	result := make(map[string]any)

	err := c.do(ctx, http.MethodPost, "/ai/tasks/"+url.PathEscape(taskType), input, &result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// do sends body as JSON and decodes the response into out when out is not nil.
// Transport errors and 5xx responses are retried with exponential backoff;
// 4xx responses are permanent.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", method, path, err)
	}

	endpoint := c.baseURL.JoinPath(path).String()
	logger := c.logger.With("method", method, "path", path)

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}

			return nil, err
		}

		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
			}
		}()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
		case resp.StatusCode >= http.StatusBadRequest:
			return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrRequestRejected, resp.StatusCode, strings.TrimSpace(string(data))))
		}

		return data, nil
	}

	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "Retrying crm request", "error", err, "wait", wait)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	data, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	return nil
}
