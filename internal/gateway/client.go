package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"masthead/pkg/clients"
	"masthead/pkg/models"
)

// Client is the HTTP implementation of Gateway.
//
// Reads go through a retrying executor; Mutate and IngestNew deliberately do
// not retry — a blind replay of a settled mutation could apply it twice
// upstream. Both paths share the circuit breaker so a dead backend trips
// fast for everything.
type Client struct {
	baseURL         string
	client          *http.Client
	readExecutor    failsafe.Executor[*http.Response]
	mutateExecutor  failsafe.Executor[*http.Response]
	readShouldRetry func(resp *http.Response, err error) bool
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a gateway client for the given backend base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	readConfig := clients.DefaultHTTPExecutorConfig()
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		client:          &http.Client{Timeout: 10 * time.Second},
		readExecutor:    clients.NewHTTPExecutor(readConfig),
		mutateExecutor:  clients.NewHTTPExecutor(clients.NoRetryHTTPExecutorConfig()),
		readShouldRetry: readConfig.ShouldRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithReadExecutorConfig overrides the executor used for idempotent reads.
func WithReadExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.readExecutor = clients.NewHTTPExecutor(cfg)
		c.readShouldRetry = cfg.ShouldRetry
	}
}

func (c *Client) doRead(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return clients.ExecuteHTTP(ctx, c.readExecutor, func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if c.readShouldRetry != nil && c.readShouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
}

func (c *Client) doMutate(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return clients.ExecuteHTTP(ctx, c.mutateExecutor, func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return c.client.Do(req)
	})
}

// decodeOrError closes the body and decodes a 2xx response into out,
// converting non-2xx responses to *APIError.
func decodeOrError(resp *http.Response, out interface{}) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ListArticles fetches articles from GET /api/articles.
func (c *Client) ListArticles(ctx context.Context, status models.Status, limit int) ([]models.Article, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", string(status))
	}
	params.Set("limit", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/api/articles?%s", c.baseURL, params.Encode())

	resp, err := c.doRead(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	})
	if err != nil {
		return nil, err
	}

	var articles []models.Article
	if err := decodeOrError(resp, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// Mutate applies a moderation action via POST /api/articles/{id}/approve.
func (c *Client) Mutate(ctx context.Context, articleID string, action models.Action, editedPost string) (models.ActionResponse, error) {
	params := url.Values{}
	params.Set("action", string(action))
	if editedPost != "" {
		params.Set("edited_post", editedPost)
	}
	reqURL := fmt.Sprintf("%s/api/articles/%s/approve?%s", c.baseURL, url.PathEscape(articleID), params.Encode())

	resp, err := c.doMutate(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return models.ActionResponse{}, err
	}

	var result models.ActionResponse
	if err := decodeOrError(resp, &result); err != nil {
		return models.ActionResponse{}, err
	}
	return result, nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) (models.HealthResponse, error) {
	reqURL := c.baseURL + "/health"

	resp, err := c.doRead(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	})
	if err != nil {
		return models.HealthResponse{}, err
	}

	var result models.HealthResponse
	if err := decodeOrError(resp, &result); err != nil {
		return models.HealthResponse{}, err
	}
	return result, nil
}

// IngestNew triggers POST /api/fetch on the backend.
func (c *Client) IngestNew(ctx context.Context) (models.IngestResult, error) {
	reqURL := c.baseURL + "/api/fetch"

	resp, err := c.doMutate(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	})
	if err != nil {
		return models.IngestResult{}, err
	}

	var result models.IngestResult
	if err := decodeOrError(resp, &result); err != nil {
		return models.IngestResult{}, err
	}
	return result, nil
}
