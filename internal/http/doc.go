// Package http provides the net/http implementation of download.Transport.
//
// This package handles:
//   - Building the request from download.Request (method, headers, body)
//   - Reporting the status line and headers once the response arrives
//   - Streaming the body to the receiver in fixed-size reads
//   - Aborting the transfer when the context is canceled
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	d := download.New(url, download.WithTransport(client))
//	err := d.Start(ctx)
//
// Non-2xx responses are not transport errors: the status code is reported
// and the body delivered like any other. CheckStatus maps a status code to
// one of the package errors for callers that want to treat it as a failure.
package http
