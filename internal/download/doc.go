// Package download implements a single-shot, cancelable, asynchronous
// download of one resource.
//
// A Download is one request attempt. It is configured at construction,
// started once, and then driven by a Transport on a background goroutine
// until it reaches exactly one terminal outcome: finished, failed or
// canceled.
//
// # Usage
//
//	d := download.New(url,
//	    download.WithTransport(transport),
//	    download.WithTimeout(30*time.Second),
//	    download.ToFile("/tmp/out.bin"),
//	)
//	d.Subscribe(download.SignalDidFinish, func(d *download.Download) {
//	    if err := d.Err(); err != nil {
//	        log.Printf("failed: %v", err)
//	        return
//	    }
//	    log.Printf("status %d, %d bytes", d.StatusCode(), d.BytesReceived())
//	})
//	if err := d.Start(ctx); err != nil {
//	    return err
//	}
//
// # Lifecycle
//
//	Idle -> Started -> Connected -> Finished
//	                 \           \-> Failed
//	                  \-> Failed  \-> Canceled
//	                   \-> Canceled
//
// Progress signals are delivered once per received body chunk and never
// before a response has arrived. The did-finish signal is delivered exactly
// once for success or failure and never for a canceled download.
//
// # Output
//
// By default the response body is buffered in memory and exposed through
// Download.Bytes. ToFile streams the body into a file instead; the file is
// created (or truncated) when the response arrives and is left in place, possibly
// truncated, when the download fails or is canceled.
package download
