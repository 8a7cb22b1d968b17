package httpx

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
)

// Default values for FastHTTPClient options
const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxConnsPerHost     = 512
	DefaultMaxIdleConnDuration = 10 * time.Second
	DefaultMaxResponseBodySize = 50 * 1024 * 1024 // 50MB
)

// FastHTTPClientOptions contains configuration for the FastHTTP client
type FastHTTPClientOptions struct {
	// Timeout is the maximum duration for the entire request (read + write)
	Timeout time.Duration

	// InsecureSkipVerify controls whether to skip TLS certificate verification
	InsecureSkipVerify bool

	// MaxConnsPerHost is the maximum number of concurrent connections per host
	MaxConnsPerHost int

	// MaxIdleConnDuration is the maximum duration for keeping idle connections open
	MaxIdleConnDuration time.Duration

	// MaxResponseBodySize is the maximum response body size to read
	MaxResponseBodySize int

	// UserAgent is the default User-Agent header value
	UserAgent string
}

// FastHTTPClientOption is a function that configures FastHTTPClientOptions
type FastHTTPClientOption func(*FastHTTPClientOptions)

// WithTimeout sets the overall request timeout
func WithTimeout(timeout time.Duration) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.Timeout = timeout
	}
}

// WithInsecureSkipVerify sets whether to skip TLS certificate verification
func WithInsecureSkipVerify(skip bool) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.InsecureSkipVerify = skip
	}
}

// WithMaxConnsPerHost sets the maximum connections per host
func WithMaxConnsPerHost(max int) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.MaxConnsPerHost = max
	}
}

// WithMaxIdleConnDuration sets the maximum idle connection duration
func WithMaxIdleConnDuration(duration time.Duration) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.MaxIdleConnDuration = duration
	}
}

// WithMaxResponseBodySize sets the maximum response body size
func WithMaxResponseBodySize(size int) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.MaxResponseBodySize = size
	}
}

// WithUserAgent sets the default User-Agent header
func WithUserAgent(userAgent string) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.UserAgent = userAgent
	}
}

type FastHTTPClient struct {
	client    *fasthttp.Client
	userAgent string
}

// NewFastHTTPClient creates a new FastHTTPClient with the given options.
// If no options are provided, sensible defaults are used.
func NewFastHTTPClient(opts ...FastHTTPClientOption) Client {
	options := &FastHTTPClientOptions{
		Timeout:             DefaultTimeout,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		MaxIdleConnDuration: DefaultMaxIdleConnDuration,
		MaxResponseBodySize: DefaultMaxResponseBodySize,
	}

	for _, opt := range opts {
		opt(options)
	}

	client := &fasthttp.Client{
		MaxConnsPerHost:     options.MaxConnsPerHost,
		MaxIdleConnDuration: options.MaxIdleConnDuration,
		MaxResponseBodySize: options.MaxResponseBodySize,
	}

	if options.Timeout > 0 {
		client.ReadTimeout = options.Timeout
		client.WriteTimeout = options.Timeout
	}

	if options.InsecureSkipVerify {
		client.TLSConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // intentionally configurable
		}
	}

	return &FastHTTPClient{
		client:    client,
		userAgent: options.UserAgent,
	}
}

func (c *FastHTTPClient) Do(req *http.Request) (*http.Response, error) {
	fastReq := fasthttp.AcquireRequest()
	fastResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(fastReq)

	if req.URL != nil {
		fastReq.SetRequestURI(req.URL.String())
	}
	fastReq.Header.SetMethod(req.Method)

	// Set Host header first so explicit request headers can override it
	if req.Host != "" {
		fastReq.Header.SetHost(req.Host)
	} else if req.URL != nil && req.URL.Host != "" {
		fastReq.Header.SetHost(req.URL.Host)
	}

	for key, values := range req.Header {
		if len(values) == 1 {
			fastReq.Header.Set(key, values[0])
		} else {
			for _, value := range values {
				fastReq.Header.Add(key, value)
			}
		}
	}

	if c.userAgent != "" && len(req.Header.Get("User-Agent")) == 0 {
		fastReq.Header.Set("User-Agent", c.userAgent)
	}

	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		fastReq.SetBodyRaw(body)
		_ = req.Body.Close()
	}

	// Honor a per-request deadline when the caller set one on the context,
	// otherwise fall back to the client-level timeouts.
	var err error
	if deadline, ok := req.Context().Deadline(); ok {
		err = c.client.DoDeadline(fastReq, fastResp, deadline)
	} else {
		err = c.client.Do(fastReq, fastResp)
	}
	if err != nil {
		fasthttp.ReleaseResponse(fastResp)
		return nil, err
	}

	// fastResp.Body() references an internal buffer that is reused after
	// release, so it must be copied before building the response.
	respBody := fastResp.Body()
	bodyCopy := make([]byte, len(respBody))
	copy(bodyCopy, respBody)

	statusCode := fastResp.StatusCode()

	headerCount := 0
	fastResp.Header.VisitAll(func(_, _ []byte) { headerCount++ })
	headers := make(http.Header, headerCount)
	fastResp.Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})

	contentLength := int64(len(bodyCopy))
	if cl := fastResp.Header.ContentLength(); cl >= 0 {
		contentLength = int64(cl)
	}

	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        headers,
		Body:          io.NopCloser(bytes.NewReader(bodyCopy)),
		ContentLength: contentLength,
		Request:       req,
	}

	fasthttp.ReleaseResponse(fastResp)

	return resp, nil
}
