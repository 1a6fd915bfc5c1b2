package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Download is a single download attempt. It is started at most once.
//
// All methods are safe for concurrent use.
type Download struct {
	id        string
	req       Request
	path      string
	transport Transport
	log       logrus.FieldLogger
	signals   *emitter

	mu            sync.Mutex
	state         State
	connected     bool
	statusCode    int
	header        http.Header
	contentLength int64
	received      int64
	resultPath    string
	err           error
	sink          sink
	startTime     time.Time
	endTime       time.Time

	cancel  context.CancelFunc
	stopCtx func() bool
	timer   *time.Timer
	stopped chan struct{}
	done    chan struct{}
}

// New creates a download of rawURL. Nothing happens until Start is called.
func New(rawURL string, opts ...Option) *Download {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.method == "" {
		o.method = http.MethodGet
		if len(o.body) > 0 {
			o.method = http.MethodPost
		}
	}
	if o.header == nil {
		o.header = make(http.Header)
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.logger = l
	}

	id := uuid.NewString()
	return &Download{
		id: id,
		req: Request{
			URL:     rawURL,
			Method:  o.method,
			Header:  o.header,
			Body:    o.body,
			Timeout: o.timeout,
		},
		path:          o.path,
		transport:     o.transport,
		log:           o.logger.WithFields(logrus.Fields{"download_id": id, "url": rawURL}),
		signals:       newEmitter(),
		contentLength: -1,
		stopped:       make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Subscribe registers fn for sig and returns a function that removes it.
// Listeners run on a dedicated goroutine, one signal at a time, in the
// order the signals were emitted.
//
// Listeners may call any method of d except Wait, and must not block on
// Done: both wait for the listeners themselves. Use Stopped instead.
//
// Signals are delivered after the transition that emitted them, so a
// progress listener may already observe a terminal state. Progress signals
// emitted before Cancel are still delivered.
func (d *Download) Subscribe(sig Signal, fn Listener) (unsubscribe func()) {
	return d.signals.subscribe(sig, fn)
}

// Start hands the request to the transport and returns immediately.
//
// Start returns ErrAlreadyStarted if called more than once; the first
// transfer is not affected. Canceling ctx cancels the download the same way
// Cancel does.
func (d *Download) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateIdle {
		return ErrAlreadyStarted
	}
	if u, err := url.Parse(d.req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return ErrNoURL
	}
	if d.transport == nil {
		return ErrNoTransport
	}

	if d.path != "" {
		d.sink = &fileSink{path: d.path}
	} else {
		d.sink = &bufferSink{}
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.stopCtx = context.AfterFunc(ctx, d.Cancel)
	d.state = StateStarted
	d.startTime = time.Now()
	d.timer = time.AfterFunc(d.req.Timeout, d.expire)
	d.log.WithField("method", d.req.Method).Debug("download started")

	req := d.req
	req.Header = d.req.Header.Clone()

	go d.signals.run()
	go d.run(ctx, &req)

	return nil
}

// Cancel aborts the download. It is a no-op before Start and after the
// download reached a terminal state. No did-finish signal is delivered for
// a canceled download.
func (d *Download) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.canTransition(StateCanceled) {
		return
	}
	d.cancelLocked()
}

// Done returns a channel that is closed once a started download has reached
// a terminal state, its transport returned, and all signals were delivered.
func (d *Download) Done() <-chan struct{} {
	return d.done
}

// Stopped returns a channel that is closed once a started download has
// reached a terminal state and its transport returned. Signals may still be
// pending, so it is safe to wait on from a listener.
func (d *Download) Stopped() <-chan struct{} {
	return d.stopped
}

// Wait blocks until Done is closed. It returns immediately if the download
// was never started. Calling Wait from a listener deadlocks.
func (d *Download) Wait() {
	if d.State() == StateIdle {
		return
	}
	<-d.done
}

// run drives the transport on the worker goroutine.
func (d *Download) run(ctx context.Context, req *Request) {
	err := d.transport.Fetch(ctx, req, receiver{d})
	d.complete(ctx, err)
	close(d.stopped)

	<-d.signals.done
	close(d.done)
}

// complete applies the transport's return value.
func (d *Download) complete(ctx context.Context, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.IsTerminal() {
		return
	}

	switch {
	case err == nil && d.state == StateConnected:
		d.finishLocked()
	case ctx.Err() != nil:
		// The parent context was canceled and the transport noticed
		// before the AfterFunc ran.
		d.cancelLocked()
	case err == nil:
		d.failLocked(&Error{Kind: KindConnect, Err: ErrNoResponse})
	case errors.Is(err, context.DeadlineExceeded):
		// A deadline of the transport's own.
		d.failLocked(&Error{Kind: KindTimeout, Err: fmt.Errorf("%w: %w", ErrTimeout, err)})
	case d.connected:
		d.failLocked(&Error{Kind: KindTransfer, Err: err})
	default:
		d.failLocked(&Error{Kind: KindConnect, Err: err})
	}
}

// expire runs when the timeout elapses.
func (d *Download) expire() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.IsActive() {
		return
	}
	d.failLocked(&Error{Kind: KindTimeout, Err: fmt.Errorf("%w after %s", ErrTimeout, d.req.Timeout)})
}

func (d *Download) finishLocked() {
	if err := d.sink.close(true); err != nil {
		d.failLocked(&Error{Kind: KindOutput, Err: err})
		return
	}

	d.state = StateFinished
	d.endTime = time.Now()
	d.releaseLocked(true)
	d.signals.post(SignalDidFinish, d)
	d.signals.close()
	d.log.WithFields(logrus.Fields{
		"status": d.statusCode,
		"bytes":  d.received,
	}).Debug("download finished")
}

func (d *Download) cancelLocked() {
	d.state = StateCanceled
	d.endTime = time.Now()
	d.releaseLocked(false)
	d.signals.close()
	d.log.Debug("download canceled")
}

func (d *Download) failLocked(err error) {
	d.err = err
	d.state = StateFailed
	d.endTime = time.Now()
	d.releaseLocked(false)
	d.signals.post(SignalDidFinish, d)
	d.signals.close()
	d.log.WithError(err).Warn("download failed")
}

// releaseLocked aborts the transport, stops the timer and finalizes the sink.
func (d *Download) releaseLocked(complete bool) {
	d.timer.Stop()
	d.stopCtx()
	d.cancel()
	if err := d.sink.close(complete); err != nil {
		d.log.WithError(err).Warn("close output")
	}
}

// receiver is the Receiver handed to the transport. Callbacks arriving after
// a terminal transition are dropped.
type receiver struct {
	d *Download
}

func (r receiver) Connected(status int, header http.Header) error {
	d := r.d
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.IsTerminal() {
		return errStopped
	}
	if !d.state.canTransition(StateConnected) {
		d.failLocked(&Error{Kind: KindTransfer, Err: ErrProtocol})
		return errStopped
	}

	if err := d.sink.open(); err != nil {
		d.failLocked(&Error{Kind: KindOutput, Err: err})
		return errStopped
	}
	if d.path != "" {
		d.resultPath = d.path
	}

	d.statusCode = status
	d.header = header.Clone()
	if d.header == nil {
		d.header = make(http.Header)
	}
	if n, err := strconv.ParseInt(d.header.Get("Content-Length"), 10, 64); err == nil {
		d.contentLength = n
	}
	d.connected = true
	d.state = StateConnected
	d.log.WithField("status", status).Debug("download connected")

	return nil
}

func (r receiver) Chunk(p []byte) error {
	d := r.d
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.IsTerminal() {
		return errStopped
	}
	if d.state != StateConnected {
		d.failLocked(&Error{Kind: KindTransfer, Err: ErrProtocol})
		return errStopped
	}

	if err := d.sink.write(p); err != nil {
		d.failLocked(&Error{Kind: KindOutput, Err: err})
		return errStopped
	}
	d.received += int64(len(p))
	d.signals.post(SignalProgress, d)

	return nil
}

// ID returns a random identifier used to correlate logs and metrics.
func (d *Download) ID() string {
	return d.id
}

// URL returns the requested URL.
func (d *Download) URL() string {
	return d.req.URL
}

// Method returns the request method.
func (d *Download) Method() string {
	return d.req.Method
}

// Timeout returns the effective timeout.
func (d *Download) Timeout() time.Duration {
	return d.req.Timeout
}

// State returns the current lifecycle state.
func (d *Download) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Started reports whether Start succeeded.
func (d *Download) Started() bool {
	return d.State() != StateIdle
}

// Connected reports whether a response was received. It stays true after
// the download reached a terminal state.
func (d *Download) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Downloading reports whether the body is currently streaming.
func (d *Download) Downloading() bool {
	return d.State() == StateConnected
}

// Downloaded reports whether the download finished successfully.
func (d *Download) Downloaded() bool {
	return d.State() == StateFinished
}

// StatusCode returns the response status code, or 0 before a response.
func (d *Download) StatusCode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusCode
}

// ResponseHeader returns a copy of the response headers.
func (d *Download) ResponseHeader() http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.header.Clone()
}

// ContentLength returns the announced body size, or -1 if unknown.
func (d *Download) ContentLength() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contentLength
}

// BytesReceived returns the number of body bytes written to the output.
func (d *Download) BytesReceived() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.received
}

// Bytes returns the buffered body once the download reached a terminal
// state. After a failure or cancellation it holds the partial body. It is
// nil for downloads written to a file. The returned slice must not be
// modified.
func (d *Download) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sink.(*bufferSink); ok {
		return s.bytes()
	}
	return nil
}

// ResultPath returns the output file path once the file was created, or ""
// for buffered downloads.
func (d *Download) ResultPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resultPath
}

// Err returns the failure, or nil. A canceled download has no error.
func (d *Download) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Duration returns the time between Start and the terminal transition, or
// the time elapsed so far.
func (d *Download) Duration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.startTime.IsZero():
		return 0
	case d.endTime.IsZero():
		return time.Since(d.startTime)
	default:
		return d.endTime.Sub(d.startTime)
	}
}
