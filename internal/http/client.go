package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ligustah/urlfetch/internal/download"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrClientError  = errors.New("http: client error")
	ErrServerError  = errors.New("http: server error")
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 4
	MaxIdleConnsPerHost int

	// ChunkSize is the size of each body read handed to the receiver.
	// Default: 32KiB
	ChunkSize int

	// UserAgent is sent when the request has no User-Agent header.
	// Default: urlfetch/1.0
	UserAgent string

	// EnableCompression lets the transport request gzip and decode it
	// transparently. When false the body is delivered exactly as sent by
	// the server, Content-Encoding included.
	// Default: false
	EnableCompression bool
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 4,
		ChunkSize:           32 * 1024,
		UserAgent:           "urlfetch/1.0",
	}
}

// Client implements download.Transport over net/http.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  !opts.EnableCompression,
	}

	return NewClientWith(&http.Client{Transport: transport}, opts)
}

// NewClientWith wraps an existing *http.Client. The client's own Timeout
// should be zero; the download enforces its timeout through the context.
func NewClientWith(client *http.Client, opts Options) *Client {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}
	return &Client{client: client, opts: opts}
}

// Fetch performs the request and streams the response to r.
// The request timeout is left to the caller's ctx.
func (c *Client) Fetch(ctx context.Context, req *download.Request, r download.Receiver) error {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		hreq.Header[k] = append([]string(nil), vs...)
	}
	if hreq.Header.Get("User-Agent") == "" && c.opts.UserAgent != "" {
		hreq.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	header := resp.Header
	if resp.ContentLength >= 0 && header.Get("Content-Length") == "" {
		header = header.Clone()
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	if err := r.Connected(resp.StatusCode, header); err != nil {
		return err
	}

	buf := make([]byte, c.opts.ChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := r.Chunk(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read body: %w", readErr)
		}
	}
}

// CheckStatus returns an appropriate error for non-success status codes.
func CheckStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d %s", ErrServerError, code, http.StatusText(code))
	case code >= 400:
		return fmt.Errorf("%w: %d %s", ErrClientError, code, http.StatusText(code))
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
