package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/perfectpic/perfectpic/sdk/go/headers"
)

const defaultUserAgent = "perfectpic-sdk-go/" + Version

// maxResponseBytes bounds how much of a JSON response body is read.
const maxResponseBytes = 8 << 20

// Config wires authentication, base URL, and telemetry for the API client.
type Config struct {
	// BaseURL is the site root the dashboard is served from, e.g.
	// https://pic.example.com. Routes are appended to it.
	BaseURL string
	// AccessToken seeds the token store when TokenStore is nil.
	AccessToken string
	// TokenStore holds the session token across requests. Login writes it,
	// Logout clears it. Defaults to an in-memory store.
	TokenStore TokenStore
	HTTPClient *http.Client
	Telemetry  TelemetryHooks
	UserAgent  string
	// AcceptLanguage is sent on every request when set.
	AcceptLanguage string
	// Retry applies to idempotent requests. Nil uses the defaults; set
	// MaxAttempts to 1 to disable.
	Retry *RetryConfig
}

// Client provides high-level helpers for interacting with the Perfect Pic API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	auth       authChain
	telemetry  TelemetryHooks
	userAgent  string
	language   string
	retry      RetryConfig

	// Grouped service clients.
	Captcha *CaptchaClient
	Auth    *AuthClient
	User    *UserClient
	Site    *SiteClient
	Images  *ImageClient
	Admin   *AdminClient
}

// NewClient validates the configuration and returns a ready-to-use Client.
// Unlike the token, the base URL is required: there is no hosted default.
func NewClient(cfg Config) (*Client, error) {
	normalized, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	tokens := cfg.TokenStore
	if tokens == nil {
		tokens = NewMemoryTokenStore(cfg.AccessToken)
	} else if cfg.AccessToken != "" {
		tokens.SetToken(cfg.AccessToken)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	retry := defaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	client := &Client{
		baseURL:    normalized,
		httpClient: httpClient,
		tokens:     tokens,
		auth:       authChain{bearerAuth{tokens: tokens}},
		telemetry:  cfg.Telemetry,
		userAgent:  ua,
		language:   strings.TrimSpace(cfg.AcceptLanguage),
		retry:      retry.normalized(),
	}
	client.Captcha = &CaptchaClient{client: client}
	client.Auth = &AuthClient{client: client}
	client.User = &UserClient{client: client}
	client.Site = &SiteClient{client: client}
	client.Images = &ImageClient{client: client}
	client.Admin = &AdminClient{client: client}
	return client, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Tokens returns the token store backing the client.
func (c *Client) Tokens() TokenStore { return c.tokens }

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ConfigError{Reason: "base URL required"}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", ConfigError{Reason: fmt.Sprintf("invalid base URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ConfigError{Reason: "base URL missing scheme (http/https)"}
	}
	if u.Host == "" {
		return "", ConfigError{Reason: "base URL missing host"}
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(encoded)), nil
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.language != "" {
		req.Header.Set(headers.AcceptLanguage, c.language)
	}
	injectRequestID(req)
	injectTraceparent(ctx, req)
	return req, nil
}

func (c *Client) prepare(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	c.auth.Apply(req)
}

// send performs req, retrying idempotent requests per the retry config.
// Responses with status >= 400 are returned as APIError.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	c.prepare(req)
	retry := c.retry
	if !isIdempotent(req.Method) && !retry.RetryPost {
		retry.MaxAttempts = 1
	}
	meta := RetryMetadata{MaxAttempts: retry.MaxAttempts}
	ctx := req.Context()
	for attempt := 1; ; attempt++ {
		meta.Attempts = attempt
		if attempt > 1 {
			delay := retry.backoffDelay(attempt)
			meta.LastBackoff = delay
			if err := sleepContext(ctx, delay); err != nil {
				return nil, TransportError{Kind: TransportErrorTimeout, Message: "request cancelled during retry backoff", Cause: err, Retries: &meta}
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
		}
		resp, err := c.do(req)
		last := attempt >= retry.MaxAttempts
		if err != nil {
			meta.LastError = err.Error()
			if last || ctx.Err() != nil {
				return nil, TransportError{Kind: classifyTransportErrorKind(err), Message: "request failed", Cause: err, Retries: &meta}
			}
			continue
		}
		meta.LastStatus = resp.StatusCode
		if resp.StatusCode >= 400 {
			if !last && retryableStatus(resp.StatusCode) {
				drainAndClose(resp)
				continue
			}
			//nolint:errcheck // best-effort cleanup on return
			defer func() { _ = resp.Body.Close() }()
			return nil, decodeAPIError(resp)
		}
		if attempt > 1 {
			c.telemetry.Log(ctx, LogLevelInfo, "http_request_retried", map[string]any{
				"method":   req.Method,
				"path":     req.URL.Path,
				"attempts": attempt,
			})
		}
		return resp, nil
	}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if c.telemetry.OnHTTPRequest != nil {
		c.telemetry.OnHTTPRequest(ctx, req)
	}
	c.telemetry.Log(ctx, LogLevelDebug, "http_request", map[string]any{
		"method":     req.Method,
		"url":        req.URL.String(),
		"request_id": req.Header.Get(headers.RequestID),
	})
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if c.telemetry.OnHTTPResponse != nil {
		c.telemetry.OnHTTPResponse(ctx, req, resp, err, latency)
	}
	c.telemetry.Metric(ctx, "sdk_http_request_latency_ms", float64(latency.Milliseconds()), map[string]string{
		"path": req.URL.Path,
	})
	return resp, err
}

// sendJSON performs a JSON request and decodes the response into out when
// out is non-nil. A body carrying an "error" field is an APIError even on a
// 2xx status.
func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out any) error {
	req, err := c.newJSONRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	return c.sendAndDecode(req, out)
}

// sendMultipart uploads content as the "file" field of a multipart form.
func (c *Client) sendMultipart(ctx context.Context, method, path, filename string, content io.Reader, out any) error {
	req, err := c.newMultipartRequest(ctx, method, path, filename, content)
	if err != nil {
		return err
	}
	return c.sendAndDecode(req, out)
}

func (c *Client) sendAndDecode(req *http.Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	//nolint:errcheck // best-effort cleanup on return
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return TransportError{Kind: classifyTransportErrorKind(err), Message: "read response body", Cause: err}
	}
	if apiErr, ok := embeddedAPIError(resp, data); ok {
		return apiErr
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return TransportError{Kind: TransportErrorEmptyResponse, Message: "empty response body"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("sdk: decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// newMultipartRequest buffers content so the body can be replayed on retry.
func (c *Client) newMultipartRequest(ctx context.Context, method, path, filename string, content io.Reader) (*http.Request, error) {
	if content == nil {
		return nil, ConfigError{Reason: "upload content is required"}
	}
	if strings.TrimSpace(filename) == "" {
		return nil, ConfigError{Reason: "upload filename is required"}
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("sdk: read upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, err
	}
	encoded := buf.Bytes()
	req, err := c.newJSONRequest(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(encoded))
	req.ContentLength = int64(len(encoded))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(encoded)), nil
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req, nil
}

func (c *Client) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func drainAndClose(resp *http.Response) {
	//nolint:errcheck // draining lets the connection be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
