// Package wda implements device.Gateway against a WebDriverAgent server.
package wda

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"mobilepilot/device"
)

const (
	DefaultURL     = "http://localhost:8100"
	defaultTimeout = 30 * time.Second
	backDuration   = 300 * time.Millisecond
)

// Client is a WebDriverAgent gateway. Reads go through a retrying HTTP
// client; gestures are posted once, since replaying a tap is not harmless.
type Client struct {
	baseURL string
	logger  hclog.Logger
	timeout time.Duration

	reads  *retryablehttp.Client
	writes *http.Client

	mu      sync.Mutex
	session string
	size    *device.Size
}

var _ device.Gateway = (*Client)(nil)

type Option func(*Client)

// WithLogger sets the logger used for requests and retries.
func WithLogger(l hclog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout bounds every HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryMax sets how many times a read is retried.
func WithRetryMax(n int) Option {
	return func(c *Client) { c.reads.RetryMax = n }
}

// WithSession pins an existing WDA session instead of creating one.
func WithSession(id string) Option {
	return func(c *Client) { c.session = id }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  hclog.NewNullLogger(),
		timeout: defaultTimeout,
		reads:   retryablehttp.NewClient(),
	}
	c.reads.RetryMax = 2
	c.reads.RetryWaitMin = 200 * time.Millisecond
	c.reads.RetryWaitMax = 2 * time.Second
	for _, opt := range opts {
		opt(c)
	}
	c.reads.Logger = c.logger.Named("http")
	c.reads.HTTPClient.Timeout = c.timeout
	c.writes = &http.Client{Timeout: c.timeout}
	return c
}

// envelope is the W3C/WDA response wrapper.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	SessionID string          `json:"sessionId"`
}

func (c *Client) Probe(ctx context.Context) (*device.Status, error) {
	var status struct {
		Ready   bool   `json:"ready"`
		Message string `json:"message"`
	}
	env, err := c.get(ctx, "/status")
	if err != nil {
		return nil, err
	}
	if len(env.Value) > 0 {
		if err := json.Unmarshal(env.Value, &status); err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
	}
	// Older WDA builds omit "ready"; a 200 from /status is good enough.
	if !status.Ready && status.Message == "" {
		status.Ready = true
	}
	return &device.Status{Ready: status.Ready, Message: status.Message, Session: env.SessionID}, nil
}

// StartSession creates a WDA session. It is called lazily by session-scoped operations.
func (c *Client) StartSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != "" {
		return c.session, nil
	}

	body, err := c.post(ctx, "/session", map[string]any{"capabilities": map[string]any{}})
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	id := sessionIDFrom(body)
	if id == "" {
		return "", fmt.Errorf("start session: no session id in response")
	}
	c.session = id
	c.logger.Debug("wda session started", "session", id)
	return id, nil
}

func sessionIDFrom(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if env.SessionID != "" {
		return env.SessionID
	}
	var v struct {
		SessionID string `json:"sessionId"`
	}
	if json.Unmarshal(env.Value, &v) == nil {
		return v.SessionID
	}
	return ""
}

// Close deletes the session if one was started.
func (c *Client) Close() error {
	c.mu.Lock()
	id := c.session
	c.session = ""
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/session/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.writes.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// sessionPath prefixes endpoint with the session, starting one if needed.
// Without a session the bare endpoint is used.
func (c *Client) sessionPath(ctx context.Context, endpoint string) string {
	id, err := c.StartSession(ctx)
	if err != nil {
		c.logger.Warn("falling back to session-less endpoint", "endpoint", endpoint, "error", err)
		return endpoint
	}
	return "/session/" + id + endpoint
}

func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	env, err := c.getWithFallback(ctx, "/screenshot")
	if err != nil {
		return nil, err
	}
	var b64 string
	if err := json.Unmarshal(env.Value, &b64); err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return data, nil
}

func (c *Client) Source(ctx context.Context) (string, error) {
	urls := c.fallbackPaths(ctx, "/source")
	var lastErr error
	for _, p := range urls {
		body, err := c.getRaw(ctx, p)
		if err != nil {
			lastErr = err
			continue
		}
		if src := UnwrapSource(body); src != "" {
			return src, nil
		}
		lastErr = fmt.Errorf("empty page source from %s", p)
	}
	return "", lastErr
}

// UnwrapSource accepts {"value": "<xml>"}, {"value": {"source": "<xml>"}} or a bare XML body.
func UnwrapSource(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '<' {
		return string(trimmed)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return ""
	}
	var s string
	if json.Unmarshal(env.Value, &s) == nil {
		return s
	}
	var wrapped struct {
		Source string `json:"source"`
	}
	if json.Unmarshal(env.Value, &wrapped) == nil {
		return wrapped.Source
	}
	return ""
}

func (c *Client) ActiveApp(ctx context.Context) (string, error) {
	env, err := c.get(ctx, "/wda/activeAppInfo")
	if err != nil {
		return "", err
	}
	var info struct {
		BundleID string `json:"bundleId"`
	}
	if err := json.Unmarshal(env.Value, &info); err != nil {
		return "", fmt.Errorf("decode active app: %w", err)
	}
	return info.BundleID, nil
}

func (c *Client) WindowSize(ctx context.Context) (device.Size, error) {
	c.mu.Lock()
	cached := c.size
	c.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	env, err := c.getWithFallback(ctx, "/window/size")
	if err != nil {
		return device.DefaultWindowSize, err
	}
	var size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := json.Unmarshal(env.Value, &size); err != nil || size.Width <= 0 || size.Height <= 0 {
		return device.DefaultWindowSize, nil
	}
	s := device.Size{Width: int(size.Width), Height: int(size.Height)}
	c.mu.Lock()
	c.size = &s
	c.mu.Unlock()
	return s, nil
}

func (c *Client) Tap(ctx context.Context, p device.Point) error {
	return c.pointer(ctx, p, 100*time.Millisecond)
}

func (c *Client) LongPress(ctx context.Context, p device.Point, d time.Duration) error {
	if d <= 0 {
		d = 3 * time.Second
	}
	return c.pointer(ctx, p, d)
}

// pointer sends a W3C touch action: move, down, pause, up.
func (c *Client) pointer(ctx context.Context, p device.Point, hold time.Duration) error {
	payload := map[string]any{
		"actions": []any{map[string]any{
			"type":       "pointer",
			"id":         "finger1",
			"parameters": map[string]any{"pointerType": "touch"},
			"actions": []any{
				map[string]any{"type": "pointerMove", "duration": 0, "x": p.X, "y": p.Y},
				map[string]any{"type": "pointerDown", "button": 0},
				map[string]any{"type": "pause", "duration": hold.Milliseconds()},
				map[string]any{"type": "pointerUp", "button": 0},
			},
		}},
	}
	_, err := c.post(ctx, c.sessionPath(ctx, "/actions"), payload)
	return err
}

func (c *Client) Swipe(ctx context.Context, from, to device.Point, d time.Duration) error {
	if d <= 0 {
		d = swipeDuration(from, to)
	}
	payload := map[string]any{
		"fromX":    from.X,
		"fromY":    from.Y,
		"toX":      to.X,
		"toY":      to.Y,
		"duration": d.Seconds(),
	}
	_, err := c.post(ctx, c.sessionPath(ctx, "/wda/dragfromtoforduration"), payload)
	return err
}

// swipeDuration scales with distance, between 0.3s and 2s.
func swipeDuration(from, to device.Point) time.Duration {
	dx, dy := float64(from.X-to.X), float64(from.Y-to.Y)
	secs := (dx*dx + dy*dy) / 100000
	secs = max(0.3, min(secs, 2.0))
	return time.Duration(secs * float64(time.Second))
}

func (c *Client) TypeText(ctx context.Context, text string) error {
	chars := make([]string, 0, len(text))
	for _, r := range text {
		chars = append(chars, string(r))
	}
	_, err := c.post(ctx, c.sessionPath(ctx, "/wda/keys"), map[string]any{"value": chars, "frequency": 60})
	return err
}

func (c *Client) Back(ctx context.Context) error {
	size, err := c.WindowSize(ctx)
	if err != nil {
		c.logger.Debug("window size unavailable, using default", "error", err)
	}
	from, to := device.BackGesture(size)
	return c.Swipe(ctx, from, to, backDuration)
}

func (c *Client) Home(ctx context.Context) error {
	_, err := c.post(ctx, "/wda/homescreen", nil)
	return err
}

func (c *Client) Launch(ctx context.Context, bundleID string) error {
	_, err := c.post(ctx, c.sessionPath(ctx, "/wda/apps/launch"), map[string]any{"bundleId": bundleID})
	return err
}

// ====================
// HTTP helpers
// ====================

func (c *Client) fallbackPaths(ctx context.Context, endpoint string) []string {
	scoped := c.sessionPath(ctx, endpoint)
	if scoped == endpoint {
		return []string{endpoint}
	}
	return []string{scoped, endpoint}
}

func (c *Client) getWithFallback(ctx context.Context, endpoint string) (*envelope, error) {
	var lastErr error
	for _, p := range c.fallbackPaths(ctx, endpoint) {
		env, err := c.get(ctx, p)
		if err == nil {
			return env, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, path string) (*envelope, error) {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &env, nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.reads.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	return readBody(resp, "GET", path)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.writes.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	return readBody(resp, "POST", path)
}

func readBody(resp *http.Response, method, path string) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	return data, nil
}

// StatusError is a non-2xx reply from WDA.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
