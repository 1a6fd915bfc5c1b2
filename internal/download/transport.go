package download

import (
	"context"
	"net/http"
	"time"
)

// Request holds the parameters handed to a Transport.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
	// Timeout is enforced by the Download, which cancels ctx when it
	// expires. Transports need not apply it themselves.
	Timeout time.Duration
}

// Receiver consumes the events of one transfer in wire order: Connected
// once, then Chunk zero or more times.
//
// A non-nil error from either method means the download no longer accepts
// data and the transport should stop and return.
type Receiver interface {
	Connected(status int, header http.Header) error
	Chunk(p []byte) error
}

// Transport performs a single transfer.
//
// Fetch blocks until the transfer ends. It returns nil when the body was
// read to the end and an error when the transfer failed. Canceling ctx
// aborts the transfer.
type Transport interface {
	Fetch(ctx context.Context, req *Request, r Receiver) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request, r Receiver) error

// Fetch calls f(ctx, req, r).
func (f TransportFunc) Fetch(ctx context.Context, req *Request, r Receiver) error {
	return f(ctx, req, r)
}
