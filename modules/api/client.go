package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guarzo/gymapi/common"
)

// RequestIDHeader correlates a request with its replay in logs.
const RequestIDHeader = "X-Request-ID"

// Request is a replayable snapshot of an outgoing request. The body is kept
// encoded so it can be sent again after a token refresh.
type Request struct {
	ID     string
	Method string
	Path   string
	Header http.Header
	Body   []byte

	replayed bool
}

// Replayed reports whether this request is the re-issue of a request that
// failed on an expired token.
func (r *Request) Replayed() bool {
	return r.replayed
}

func (r *Request) clone() *Request {
	clone := *r
	clone.Header = r.Header.Clone()
	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}
	return &clone
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into out.
func (r *Response) Decode(out interface{}) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ResponseInterceptor observes every outcome of a request before it reaches
// the caller and may replace it.
type ResponseInterceptor func(ctx context.Context, req *Request, resp *Response, err error) (*Response, error)

type interceptor struct {
	fn ResponseInterceptor
}

// Client is the HTTP client core: it attaches the default bearer token and
// runs the response interceptors.
type Client struct {
	baseURL    string
	httpClient common.HttpClient
	logger     *zap.Logger

	mu           sync.RWMutex
	authHeader   string
	interceptors []*interceptor
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, httpClient common.HttpClient, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDefaultAuthHeader sets the token attached to every subsequent request.
// An empty token stops attaching the header. Requests already built keep the
// header they were built with.
func (c *Client) SetDefaultAuthHeader(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == "" {
		c.authHeader = ""
		return
	}
	c.authHeader = common.BearerHeader(token)
}

// DefaultAuthHeader returns the current Authorization value, if any.
func (c *Client) DefaultAuthHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.authHeader
}

// OnResponse registers an interceptor and returns a function ejecting it.
// Interceptors run in registration order.
func (c *Client) OnResponse(fn ResponseInterceptor) (eject func()) {
	entry := &interceptor{fn: fn}

	c.mu.Lock()
	c.interceptors = append(c.interceptors, entry)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			for i, e := range c.interceptors {
				if e == entry {
					c.interceptors = append(c.interceptors[:i:i], c.interceptors[i+1:]...)
					return
				}
			}
		})
	}
}

// Request sends a request. A non-nil body is JSON encoded unless it is
// already a []byte. The default Authorization header is attached unless
// header sets one.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}, header http.Header) (*Response, error) {
	req, err := c.NewRequest(method, path, body, header)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, nil)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, nil)
}

// Put sends a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, nil)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, nil)
}

// JSON sends a request and decodes the response into out when out is non-nil.
func (c *Client) JSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.Request(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}

// NewRequest builds a request snapshot without sending it.
func (c *Client) NewRequest(method, path string, body interface{}, header http.Header) (*Request, error) {
	var data []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		data = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		data = encoded
	}

	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("Authorization") == "" {
		if auth := c.DefaultAuthHeader(); auth != "" {
			h.Set("Authorization", auth)
		}
	}

	return &Request{
		ID:     uuid.NewString(),
		Method: method,
		Path:   path,
		Header: h,
		Body:   data,
	}, nil
}

// Do sends req and runs the interceptors on the outcome.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.execute(ctx, req)

	c.mu.RLock()
	chain := make([]*interceptor, len(c.interceptors))
	copy(chain, c.interceptors)
	c.mu.RUnlock()

	for _, ic := range chain {
		resp, err = ic.fn(ctx, req, resp, err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Replay re-issues req with token as its bearer credential. The replay is
// marked so a second token failure is propagated instead of refreshed again.
func (c *Client) Replay(ctx context.Context, req *Request, token string) (*Response, error) {
	replay := req.clone()
	replay.Header.Set("Authorization", common.BearerHeader(token))
	replay.replayed = true
	return c.Do(ctx, replay)
}

// URL resolves path against the base URL, for assets such as avatars.
func (c *Client) URL(path string) string {
	u, err := resolveURL(c.baseURL, path)
	if err != nil {
		return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return u
}

// execute actually does the low-level HTTP
func (c *Client) execute(ctx context.Context, req *Request) (*Response, error) {
	urlStr, err := resolveURL(c.baseURL, req.Path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(RequestIDHeader, req.ID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("id", req.ID),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))
		return nil, common.NewTransportError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, common.NewTransportError(fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.Debug("request",
		zap.String("id", req.ID),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", httpResp.StatusCode),
		zap.Bool("replayed", req.replayed),
		zap.Duration("elapsed", time.Since(start)))

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, common.NewHTTPError(httpResp.StatusCode, data)
	}
	return resp, nil
}

// resolveURL joins baseURL and path, keeping any path prefix of baseURL.
func resolveURL(baseURL, path string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String(), nil
}
