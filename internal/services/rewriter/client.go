package rewriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"porter/internal/config"
	"porter/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// TransformContext tells the rewriter where a document came from and where
// it is headed, so link rewriting can resolve relative references.
type TransformContext struct {
	SourcePath      string `json:"sourcePath"`
	DestinationPath string `json:"destinationPath"`
	MDPath          string `json:"mdPath,omitempty"`
	Experience      string `json:"experience"`
}

// Client talks to the document transformation service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes a rewriter client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a rewriter client.
func NewClient(baseURL, token string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewConfiguredClient builds the rewriter client from daemon configuration.
func NewConfiguredClient(cfg *config.Config) *Client {
	return NewClient(cfg.Rewriter.BaseURL, cfg.Rewriter.Token,
		WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Rewriter.RequestTimeout) * time.Second}),
	)
}

type transformRequest struct {
	Content []byte           `json:"content"`
	Context TransformContext `json:"context"`
}

type transformResponse struct {
	Artifact []byte `json:"artifact"`
	Error    string `json:"error,omitempty"`
}

// Transform sends document bytes through the rewriter and returns the
// transformed artifact.
func (c *Client) Transform(ctx context.Context, content []byte, tctx TransformContext) ([]byte, error) {
	if len(content) == 0 {
		return nil, services.Wrap(services.ErrValidation, "rewriter", "transform", "empty document for "+tctx.SourcePath, nil)
	}
	payload, err := json.Marshal(transformRequest{Content: content, Context: tctx})
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "rewriter", "transform", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transform", bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "rewriter", "transform", "build request", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "rewriter", "transform", tctx.SourcePath, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "rewriter", "transform", "read response body", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrAuth, "rewriter", "transform",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, services.Wrap(services.ErrTransient, "rewriter", "transform",
			fmt.Sprintf("http %d for %s", resp.StatusCode, tctx.SourcePath), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, services.Wrap(services.ErrExternal, "rewriter", "transform",
			fmt.Sprintf("http %d for %s: %s", resp.StatusCode, tctx.SourcePath, strings.TrimSpace(string(body))), nil)
	}
	var result transformResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, services.Wrap(services.ErrExternal, "rewriter", "transform", "decode response for "+tctx.SourcePath, err)
	}
	if result.Error != "" {
		return nil, services.Wrap(services.ErrExternal, "rewriter", "transform", tctx.SourcePath+": "+result.Error, nil)
	}
	if len(result.Artifact) == 0 {
		return nil, services.Wrap(services.ErrExternal, "rewriter", "transform", "empty artifact for "+tctx.SourcePath, nil)
	}
	return result.Artifact, nil
}
