// Package progress provides progress reporting for downloads.
//
// This package outputs human-readable progress information, including
// received bytes, transfer speed and ETA. It is fed by the progress and
// did-finish signals of the downloads it tracks.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    Output: os.Stderr,
//	})
//	reporter.Track(d)
//
//	reporter.Start()
//	defer reporter.Stop()
//
// # Output Format
//
//	[urlfetch] Downloading: https://example.com/file.tar.gz
//	[urlfetch] Progress: 45.2% | 1.1 GiB / 2.5 GiB | Speed: 12 MiB/s | ETA: 1m 52s
//	[urlfetch] Finished: https://example.com/file.tar.gz (200, 2.5 GiB in 3m 30s)
package progress
