package download

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout is used when no positive timeout is configured.
const DefaultTimeout = 60 * time.Second

// Option is a functional option for configuring a Download.
type Option func(*options)

type options struct {
	method    string
	header    http.Header
	body      []byte
	timeout   time.Duration
	path      string
	transport Transport
	logger    logrus.FieldLogger
}

// WithMethod sets the request method. The default is GET, or POST when a
// body is set.
func WithMethod(method string) Option {
	return func(o *options) {
		o.method = method
	}
}

// WithHeader adds a request header. Keys are canonicalized, so keys that
// differ only in case refer to the same header.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(key, value)
	}
}

// WithHeaders adds every header in h.
func WithHeaders(h http.Header) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		for k, vs := range h {
			for _, v := range vs {
				o.header.Add(k, v)
			}
		}
	}
}

// WithBody sets the request body. The slice is copied.
func WithBody(body []byte) Option {
	return func(o *options) {
		o.body = append([]byte(nil), body...)
	}
}

// WithTimeout bounds the whole transfer, from Start to the last byte.
// Values <= 0 select DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// ToFile streams the response body into path instead of buffering it.
// The file takes precedence over the in-memory buffer.
func ToFile(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithTransport sets the transport that performs the transfer.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}
