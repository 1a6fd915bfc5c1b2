package download

import (
	"errors"
	"fmt"
)

// Misuse errors, returned synchronously by Start.
var (
	ErrAlreadyStarted = errors.New("download: already started")
	ErrNoURL          = errors.New("download: missing or invalid url")
	ErrNoTransport    = errors.New("download: no transport configured")
)

// Transfer errors, recorded in Download.Err wrapped in an *Error.
var (
	ErrTimeout    = errors.New("download: timed out")
	ErrNoResponse = errors.New("download: transport finished without a response")
	ErrProtocol   = errors.New("download: transport callback out of order")
)

// errStopped is returned to the transport from a Receiver callback once the
// download no longer accepts data.
var errStopped = errors.New("download: stopped")

// Kind classifies a transfer error.
type Kind int

const (
	// KindConnect means no response was ever received.
	KindConnect Kind = iota + 1
	// KindTransfer means the transfer broke off after the response arrived.
	KindTransfer
	// KindTimeout means the configured timeout expired first.
	KindTimeout
	// KindOutput means the output sink could not be written.
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindTransfer:
		return "transfer"
	case KindTimeout:
		return "timeout"
	case KindOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Error is the error recorded by a failed download.
//
// Use errors.As to inspect the Kind, or errors.Is to match the underlying
// cause (for example ErrTimeout or syscall.ECONNREFUSED).
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or 0 if err is not a download error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
