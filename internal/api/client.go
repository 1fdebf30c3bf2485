package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ledgerdash/internal/core"
	applog "ledgerdash/internal/log"
)

// CartEndpoint receives {product, quantity} and answers 201 on success.
const CartEndpoint = "cart/add/"

const maxBodyBytes = 32 << 20

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *applog.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *applog.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(applog.ComponentAPI) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for the REST backend rooted at baseURL. Every
// endpoint path is resolved against it.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c := &Client{
		baseURL:    u,
		httpClient: NewHTTPClient(30 * time.Second),
		logger:     applog.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewHTTPClient creates an HTTP client with connection pooling, proper
// timeouts and keep-alive settings.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// URL resolves an endpoint suffix against the base URL.
func (c *Client) URL(endpoint string) string {
	ref := &url.URL{Path: strings.TrimLeft(endpoint, "/")}
	return c.baseURL.ResolveReference(ref).String()
}

// Get issues one authenticated GET and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, sess *Session, endpoint string) ([]byte, error) {
	return c.do(ctx, sess, http.MethodGet, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, sess *Session, method, endpoint string, body []byte, accept func(int) bool) ([]byte, error) {
	if err := sess.Check(c.now()); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			apiErr.Endpoint = endpoint
		}
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(endpoint), reader)
	if err != nil {
		return nil, networkError(endpoint, 0, err)
	}
	sess.authorize(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "Backend request failed",
			applog.FieldMethod, method,
			applog.FieldEndpoint, endpoint,
			applog.FieldError, err.Error())
		return nil, networkError(endpoint, 0, err)
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	c.logger.DebugContext(ctx, "Backend request completed",
		applog.FieldMethod, method,
		applog.FieldEndpoint, endpoint,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, authError(endpoint, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if accept != nil {
		ok = accept(resp.StatusCode)
	}
	if !ok {
		return nil, networkError(endpoint, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}
	if readErr != nil {
		return nil, networkError(endpoint, resp.StatusCode, fmt.Errorf("read body: %w", readErr))
	}
	return payload, nil
}

// Fetch loads a list resource: one authenticated GET, envelope normalisation
// and record decoding. The result is never nil on success.
func Fetch[T any](ctx context.Context, c *Client, sess *Session, endpoint string, shape Envelope) ([]T, error) {
	body, err := c.Get(ctx, sess, endpoint)
	if err != nil {
		return nil, err
	}
	records, err := Decode[T](body, shape)
	if err != nil {
		return nil, parseError(endpoint, err)
	}
	return records, nil
}

// AddToCart posts a cart item. Only HTTP 201 counts as success.
func (c *Client) AddToCart(ctx context.Context, sess *Session, item core.CartItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid cart item: %w", err)
	}
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal cart item: %w", err)
	}
	_, err = c.do(ctx, sess, http.MethodPost, CartEndpoint, body, func(status int) bool {
		return status == http.StatusCreated
	})
	return err
}
