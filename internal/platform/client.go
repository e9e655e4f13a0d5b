// Package platform is a small HTTP client for the remote platform that hosts
// files, tags, plugin instances and asynchronous tasks.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL     = "https://api.steamship.com/api/v1"
	DefaultHTTPTimeout = 60 * time.Second
)

// ErrNotFound is returned when the platform reports a missing object.
var ErrNotFound = errors.New("platform: object not found")

// APIError represents an error envelope returned by the platform.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("platform api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("platform api error (%d): %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match not-found responses.
func (e *APIError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	return e.StatusCode == http.StatusNotFound || strings.EqualFold(e.Code, "ObjectNotFound")
}

type envelope struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Status *Task           `json:"status,omitempty"`
	Error  *APIError       `json:"error,omitempty"`
}

// Client talks to one platform workspace.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	workspace  string
	httpClient *http.Client

	mu sync.Mutex
	ws *Workspace
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithWorkspace scopes every request to the named workspace handle.
func WithWorkspace(handle string) Option {
	return func(c *Client) { c.workspace = handle }
}

// NewClient returns a client for the platform at rawURL. An empty rawURL
// selects DefaultBaseURL.
func NewClient(rawURL, apiKey string, opts ...Option) (*Client, error) {
	if rawURL == "" {
		rawURL = DefaultBaseURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	c := &Client{
		baseURL:    parsed,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Workspace returns the workspace the client is bound to. The result is
// fetched once and reused.
func (c *Client) Workspace(ctx context.Context) (Workspace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		return *c.ws, nil
	}
	var ws Workspace
	payload := map[string]any{}
	if c.workspace != "" {
		payload["handle"] = c.workspace
	}
	if err := c.call(ctx, "workspace/get", payload, &ws); err != nil {
		return Workspace{}, err
	}
	c.ws = &ws
	return ws, nil
}

// call posts payload to endpoint and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, endpoint string, payload any, out any) error {
	env, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// callTask posts payload to an asynchronous endpoint and returns its task.
func (c *Client) callTask(ctx context.Context, endpoint string, payload any) (*Task, error) {
	env, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if env.Status == nil {
		return nil, fmt.Errorf("%s: response carries no task status", endpoint)
	}
	task := *env.Status
	if len(task.Output) == 0 && len(env.Data) > 0 {
		task.Output = env.Data
	}
	return &task, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.workspace != "" {
		req.Header.Set("X-Workspace-Handle", c.workspace)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 400 {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 400 || env.Error != nil {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Message: strings.TrimSpace(string(data))}
		}
		apiErr.StatusCode = resp.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}
	return &env, nil
}
