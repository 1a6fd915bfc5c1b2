package urlfetch

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ligustah/urlfetch/internal/download"
	fetchhttp "github.com/ligustah/urlfetch/internal/http"
)

type (
	// Download is a single download attempt.
	Download = download.Download

	// Option configures a Download.
	Option = download.Option

	// Signal names an event delivered to subscribers.
	Signal = download.Signal

	// Listener receives a signal.
	Listener = download.Listener

	// State is the lifecycle state of a Download.
	State = download.State

	// Error is a failed download's error, classified by Kind.
	Error = download.Error

	// Kind classifies an Error.
	Kind = download.Kind

	// Request is what a Transport is asked to fetch.
	Request = download.Request

	// Receiver consumes the response of a Transport.
	Receiver = download.Receiver

	// Transport performs the network transfer for a Download.
	Transport = download.Transport

	// TransportFunc adapts a function to Transport.
	TransportFunc = download.TransportFunc

	// HTTPOptions configures the default transport.
	HTTPOptions = fetchhttp.Options
)

const (
	SignalProgress  = download.SignalProgress
	SignalDidFinish = download.SignalDidFinish
)

const (
	StateIdle      = download.StateIdle
	StateStarted   = download.StateStarted
	StateConnected = download.StateConnected
	StateFinished  = download.StateFinished
	StateFailed    = download.StateFailed
	StateCanceled  = download.StateCanceled
)

const (
	KindConnect  = download.KindConnect
	KindTransfer = download.KindTransfer
	KindTimeout  = download.KindTimeout
	KindOutput   = download.KindOutput
)

// DefaultTimeout applies when no timeout is configured.
const DefaultTimeout = download.DefaultTimeout

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = download.ErrAlreadyStarted

	// ErrNoURL is returned by Start for an empty or invalid URL.
	ErrNoURL = download.ErrNoURL

	// ErrTimeout matches any timeout failure through errors.Is.
	ErrTimeout = download.ErrTimeout

	// ErrNoResponse means the transport completed without a response.
	ErrNoResponse = download.ErrNoResponse
)

// New creates a download of rawURL using the default HTTP transport unless
// WithTransport is given.
func New(rawURL string, opts ...Option) *Download {
	opts = append([]Option{download.WithTransport(defaultTransport)}, opts...)
	return download.New(rawURL, opts...)
}

// defaultTransport is shared by downloads created with New so they reuse
// idle connections.
var defaultTransport = fetchhttp.NewClient(fetchhttp.DefaultOptions())

// NewTransport returns an HTTP transport configured with opts.
func NewTransport(opts HTTPOptions) Transport {
	return fetchhttp.NewClient(opts)
}

// DefaultHTTPOptions returns the options of the default transport.
func DefaultHTTPOptions() HTTPOptions { return fetchhttp.DefaultOptions() }

// KindOf returns the Kind of a download error, or 0.
func KindOf(err error) Kind { return download.KindOf(err) }

// WithMethod sets the request method.
func WithMethod(method string) Option { return download.WithMethod(method) }

// WithHeader adds a request header.
func WithHeader(key, value string) Option { return download.WithHeader(key, value) }

// WithHeaders adds all headers in h.
func WithHeaders(h http.Header) Option { return download.WithHeaders(h) }

// WithBody sets the request body. Without WithMethod the request is a POST.
func WithBody(body []byte) Option { return download.WithBody(body) }

// WithTimeout limits the whole download. Values <= 0 select DefaultTimeout.
func WithTimeout(d time.Duration) Option { return download.WithTimeout(d) }

// ToFile streams the body into path instead of memory.
func ToFile(path string) Option { return download.ToFile(path) }

// WithTransport replaces the default HTTP transport.
func WithTransport(t Transport) Option { return download.WithTransport(t) }

// WithLogger sets the logger for lifecycle events.
func WithLogger(l logrus.FieldLogger) Option { return download.WithLogger(l) }
