// Package urlfetch downloads single resources over HTTP asynchronously.
//
// A Download is configured at construction, started once and then runs on
// its own goroutine until it finishes, fails or is canceled. New wires the
// default net/http transport; use WithTransport to replace it.
//
//	d := urlfetch.New("https://example.com/file.tar.gz",
//	    urlfetch.ToFile("file.tar.gz"),
//	    urlfetch.WithTimeout(5*time.Minute),
//	)
//	d.Subscribe(urlfetch.SignalProgress, func(d *urlfetch.Download) {
//	    fmt.Printf("%d / %d\n", d.BytesReceived(), d.ContentLength())
//	})
//	if err := d.Start(ctx); err != nil {
//	    return err
//	}
//	d.Wait()
//	if err := d.Err(); err != nil {
//	    return err
//	}
//
// Cancel aborts a running download without an error and without a
// did-finish signal.
package urlfetch
