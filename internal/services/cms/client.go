package cms

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

const defaultHTTPTimeout = 30 * time.Second

// Operation names a bulk action the CMS admin endpoint can perform.
type Operation string

const (
	OperationPreview Operation = "preview"
	OperationPublish Operation = "publish"
)

// JobHandle identifies a server-side bulk job.
type JobHandle struct {
	ID string `json:"jobId"`
}

// Resource is one per-path result reported by the job-details endpoint.
type Resource struct {
	Path         string `json:"path"`
	Success      bool   `json:"success"`
	ResourcePath string `json:"resourcePath,omitempty"`
}

// JobStatus is one snapshot of a bulk job. A job in a stopped or cancelled
// state reports Terminal true; the detail endpoint may return only a subset
// of resources per call.
type JobStatus struct {
	State     string     `json:"state"`
	Terminal  bool       `json:"-"`
	Resources []Resource `json:"resources"`
}

// Client talks to the CMS admin endpoint that runs bulk preview/publish
// operations over sets of paths.
type Client struct {
	baseURL    string
	token      string
	org        string
	site       string
	httpClient *http.Client
	limiter    *services.RateLimiter
}

// Option customizes a CMS client.
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

// NewClient constructs a CMS admin client.
func NewClient(baseURL, token, org, site string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		org:        strings.TrimSpace(org),
		site:       strings.TrimSpace(site),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewConfiguredClient builds the CMS client from daemon configuration.
func NewConfiguredClient(cfg *config.Config) *Client {
	return NewClient(cfg.CMS.BaseURL, cfg.CMS.Token, cfg.CMS.Org, cfg.CMS.Site,
		WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.CMS.RequestTimeout) * time.Second}),
	)
}

type submitRequest struct {
	Paths   []string          `json:"paths"`
	Org     string            `json:"org,omitempty"`
	Site    string            `json:"site,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// SubmitBulk posts the path set to the bulk-operation endpoint and returns
// the server-issued job handle. The caller owns retry policy; a single
// transport or HTTP failure is returned as-is.
func (c *Client) SubmitBulk(ctx context.Context, paths []string, op Operation, opContext map[string]string) (JobHandle, error) {
	if len(paths) == 0 {
		return JobHandle{}, services.Wrap(services.ErrValidation, "cms", "submit bulk", "no paths to submit", nil)
	}
	payload, err := json.Marshal(submitRequest{Paths: paths, Org: c.org, Site: c.site, Context: opContext})
	if err != nil {
		return JobHandle{}, services.Wrap(services.ErrExternal, "cms", "submit bulk", "encode request", err)
	}
	endpoint := fmt.Sprintf("%s/api/bulk/%s", c.baseURL, op)
	body, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return JobHandle{}, err
	}
	var handle JobHandle
	if err := json.Unmarshal(body, &handle); err != nil {
		return JobHandle{}, services.Wrap(services.ErrExternal, "cms", "submit bulk", "decode job handle", err)
	}
	if handle.ID == "" {
		return JobHandle{}, services.Wrap(services.ErrExternal, "cms", "submit bulk", "response carried no job id", nil)
	}
	return handle, nil
}

// terminalStates are job states after which no further resource updates
// arrive.
var terminalStates = map[string]struct{}{
	"stopped":   {},
	"complete":  {},
	"completed": {},
	"cancelled": {},
	"failed":    {},
}

// PollJob fetches one snapshot of the job's per-path results.
func (c *Client) PollJob(ctx context.Context, handle JobHandle) (JobStatus, error) {
	if handle.ID == "" {
		return JobStatus{}, services.Wrap(services.ErrValidation, "cms", "poll job", "empty job handle", nil)
	}
	endpoint := fmt.Sprintf("%s/api/bulk/job/%s", c.baseURL, handle.ID)
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return JobStatus{}, err
	}
	var status JobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return JobStatus{}, services.Wrap(services.ErrExternal, "cms", "poll job", "decode job details", err)
	}
	_, status.Terminal = terminalStates[strings.ToLower(strings.TrimSpace(status.State))]
	return status, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "cms", "request", method+" "+endpoint, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "cms", "request", method+" "+endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "cms", "request", "read response body", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrAuth, "cms", "request",
			fmt.Sprintf("http %d for %s", resp.StatusCode, endpoint), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, services.Wrap(services.ErrTransient, "cms", "request",
			fmt.Sprintf("http %d for %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(body))), nil)
	}
	return body, nil
}
