// Package backend is the HTTP client of the village PHP API. The API owns
// every business rule; this package only shapes requests and decodes the
// {success, message, ...} envelopes it answers with.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoResponse means the API could not be reached or did not answer.
	ErrNoResponse = errors.New("no response from server")
	// ErrBadResponse means the API answered with something that is not an envelope.
	ErrBadResponse = errors.New("unreadable response from server")
)

// Result is the status code and raw body of an API answer that decoded as
// an envelope. Success=false is a backend-reported failure, not an error.
type Result struct {
	StatusCode int
	Success    bool
	Message    string
	Body       json.RawMessage
}

// Decode unmarshals the full response body into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	BypassHeader  string // "Name: value" sent with every request
	Timeout       time.Duration
	UploadTimeout time.Duration
	HTTPClient    *http.Client
}

// Client calls the village API.
type Client struct {
	base          *url.URL
	bypassName    string
	bypassValue   string
	timeout       time.Duration
	uploadTimeout time.Duration
	http          *http.Client
	logger        *zap.SugaredLogger
}

// New creates a client for cfg.BaseURL
func New(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		base:          base,
		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
		http:          cfg.HTTPClient,
		logger:        logger,
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = 30 * time.Second
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	if name, value, ok := strings.Cut(cfg.BypassHeader, ":"); ok {
		c.bypassName = strings.TrimSpace(name)
		c.bypassValue = strings.TrimSpace(value)
	}
	return c, nil
}

// endpoint resolves path (e.g. "complaints/detail") plus query against the base URL.
func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func idQuery(id string) url.Values {
	return url.Values{"id": {id}}
}

// getJSON, postJSON, putJSON and deleteJSON use the JSON timeout.
func (c *Client) getJSON(ctx context.Context, bearer, path string, query url.Values) (*Result, error) {
	return c.doJSON(ctx, http.MethodGet, bearer, path, query, nil)
}

func (c *Client) postJSON(ctx context.Context, bearer, path string, body any) (*Result, error) {
	return c.doJSON(ctx, http.MethodPost, bearer, path, nil, body)
}

func (c *Client) putJSON(ctx context.Context, bearer, path string, query url.Values, body any) (*Result, error) {
	return c.doJSON(ctx, http.MethodPut, bearer, path, query, body)
}

func (c *Client) deleteJSON(ctx context.Context, bearer, path string, query url.Values) (*Result, error) {
	return c.doJSON(ctx, http.MethodDelete, bearer, path, query, nil)
}

func (c *Client) doJSON(ctx context.Context, method, bearer, path string, query url.Values, body any) (*Result, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, bearer, path)
}

// send adds the common headers and decodes the envelope.
func (c *Client) send(req *http.Request, bearer, path string) (*Result, error) {
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if c.bypassName != "" {
		req.Header.Set(c.bypassName, c.bypassValue)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warnw("Backend request failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNoResponse, req.Method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrNoResponse, path, err)
	}

	c.logger.Debugw("Backend request",
		"method", req.Method,
		"path", path,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s answered %d", ErrBadResponse, path, resp.StatusCode)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Success:    env.Success && resp.StatusCode < 400,
		Message:    env.Message,
		Body:       raw,
	}, nil
}

// Ping checks that the API base URL answers at all.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), nil)
	if err != nil {
		return err
	}
	if c.bypassName != "" {
		req.Header.Set(c.bypassName, c.bypassValue)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	resp.Body.Close()
	return nil
}
