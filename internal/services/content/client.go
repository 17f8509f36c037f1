package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"porter/internal/config"
	"porter/internal/services"
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to one path-addressed content store. The daemon constructs
// two instances: one for the source store (manifests and document bytes) and
// one for the promotion target (uploads).
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *services.RateLimiter
	maxRetries int
	retryDelay time.Duration
}

// Option customizes a content client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimiter installs a call-spacing limiter owned by this client.
func WithRateLimiter(limiter *services.RateLimiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithRetries bounds transient-error retries and the delay between them.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// NewClient constructs a content store client.
func NewClient(baseURL, token string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewSourceClient builds the client for the source content store.
func NewSourceClient(cfg *config.Config) *Client {
	return NewClient(cfg.Source.BaseURL, cfg.Source.Token,
		WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Source.RequestTimeout) * time.Second}),
		WithRateLimiter(services.NewRateLimiter(time.Duration(cfg.Source.MinCallGapMS)*time.Millisecond)),
		WithRetries(cfg.Source.MaxRetries, time.Duration(cfg.Source.RetryDelay)*time.Second),
	)
}

// NewTargetClient builds the client for the promotion destination store.
func NewTargetClient(cfg *config.Config) *Client {
	return NewClient(cfg.Target.BaseURL, cfg.Target.Token,
		WithRateLimiter(services.NewRateLimiter(time.Duration(cfg.Target.MinCallGapMS)*time.Millisecond)),
	)
}

// Metadata describes a stored file without its bytes.
type Metadata struct {
	DownloadURL string `json:"downloadUrl"`
	Size        int64  `json:"size"`
}

type uploadResponse struct {
	Success    bool   `json:"success"`
	LockedFile bool   `json:"lockedFile,omitempty"`
	ErrorMsg   string `json:"errorMsg,omitempty"`
}

// ReadJSON fetches the document stored at path and decodes it into out.
// A missing document is reported as services.ErrNotFound.
func (c *Client) ReadJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, c.fileURL(path), nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrExternal, "content", "read json", "decode "+path, err)
	}
	return nil
}

// WriteJSON stores doc at path, replacing any existing document.
func (c *Client) WriteJSON(ctx context.Context, path string, doc any) error {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return services.Wrap(services.ErrExternal, "content", "write json", "encode "+path, err)
	}
	_, err = c.do(ctx, http.MethodPut, c.fileURL(path), encoded, "application/json")
	return err
}

// List returns the store paths under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	endpoint := c.baseURL + "/list?prefix=" + url.QueryEscape(prefix)
	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}
	var listing struct {
		Entries []string `json:"entries"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, services.Wrap(services.ErrExternal, "content", "list", "decode listing for "+prefix, err)
	}
	return listing.Entries, nil
}

// Delete removes the document at path. Deleting a missing document is not
// an error.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, c.fileURL(path), nil, "")
	if err != nil && services.IsNotFound(err) {
		return nil
	}
	return err
}

// FetchMetadata returns the download handle and size for a stored file.
func (c *Client) FetchMetadata(ctx context.Context, path string) (Metadata, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/metadata"+normalizePath(path), nil, "")
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return Metadata{}, services.Wrap(services.ErrExternal, "content", "fetch metadata", "decode "+path, err)
	}
	return meta, nil
}

// Download fetches raw bytes from a download URL returned by FetchMetadata.
func (c *Client) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, downloadURL, nil, "")
}

// Upload stores raw bytes at destPath. A destination held by another writer
// is reported as services.ErrLocked so callers can record a soft failure.
func (c *Client) Upload(ctx context.Context, destPath string, data []byte) error {
	body, err := c.do(ctx, http.MethodPut, c.baseURL+"/upload"+normalizePath(destPath), data, "application/octet-stream")
	if err != nil {
		return err
	}
	var result uploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return services.Wrap(services.ErrExternal, "content", "upload", "decode response for "+destPath, err)
	}
	if result.LockedFile {
		return services.Wrap(services.ErrLocked, "content", "upload", destPath+" is locked by another writer", nil)
	}
	if !result.Success {
		message := strings.TrimSpace(result.ErrorMsg)
		if message == "" {
			message = "upload rejected"
		}
		return services.Wrap(services.ErrExternal, "content", "upload", destPath+": "+message, nil)
	}
	return nil
}

func (c *Client) fileURL(path string) string {
	return c.baseURL + "/files" + normalizePath(path)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '/' {
		return "/" + path
	}
	return path
}

// do issues one request with rate limiting and bounded transient retries.
// Auth failures and not-found responses are never retried.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, contentType string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := services.SleepWithContext(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		body, err := c.doOnce(ctx, method, endpoint, payload, contentType)
		if err == nil {
			return body, nil
		}
		if !services.IsRetriable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, payload []byte, contentType string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "content", "request", method+" "+endpoint, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "content", "request", method+" "+endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "content", "request", "read response body", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrAuth, "content", "request",
			fmt.Sprintf("http %d for %s", resp.StatusCode, endpoint), nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(services.ErrNotFound, "content", "request", endpoint, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, services.Wrap(services.ErrTransient, "content", "request",
			fmt.Sprintf("http %d for %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(body))), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, services.Wrap(services.ErrExternal, "content", "request",
			fmt.Sprintf("http %d for %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(body))), nil)
	}
	return body, nil
}
