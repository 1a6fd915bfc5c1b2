package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ligustah/urlfetch/internal/download"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Prefix starts every line.
	// Default: [urlfetch]
	Prefix string
}

// Reporter outputs human-readable progress information for a set of downloads.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	downloads  []*download.Download
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    bool
	stopped    bool

	chunks    atomic.Int64
	completed atomic.Int32
	failed    atomic.Int32
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}
	if opts.Prefix == "" {
		opts.Prefix = "[urlfetch]"
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Track subscribes the reporter to d. Call it before d.Start.
func (r *Reporter) Track(d *download.Download) {
	r.mu.Lock()
	r.downloads = append(r.downloads, d)
	r.mu.Unlock()

	d.Subscribe(download.SignalProgress, func(*download.Download) {
		r.chunks.Add(1)
	})
	d.Subscribe(download.SignalDidFinish, r.finished)
}

// Start prints the header and begins periodic progress output.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.running = true
	downloads := append([]*download.Download(nil), r.downloads...)
	r.mu.Unlock()

	for _, d := range downloads {
		r.printf("Downloading: %s\n", d.URL())
	}

	go r.updateLoop()
}

// Stop stops the reporter and prints a summary.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.running {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// Completed returns the number of tracked downloads that finished successfully.
func (r *Reporter) Completed() int {
	return int(r.completed.Load())
}

// Failed returns the number of tracked downloads that failed.
func (r *Reporter) Failed() int {
	return int(r.failed.Load())
}

// Chunks returns the number of progress signals received.
func (r *Reporter) Chunks() int64 {
	return r.chunks.Load()
}

// finished is the did-finish listener.
func (r *Reporter) finished(d *download.Download) {
	if err := d.Err(); err != nil {
		r.failed.Add(1)
		r.printf("\rFailed: %s: %v\n", d.URL(), err)
		return
	}
	r.completed.Add(1)
	r.printf("\rFinished: %s (%d, %s in %s)\n",
		d.URL(),
		d.StatusCode(),
		FormatBytes(d.BytesReceived()),
		formatDuration(d.Duration()),
	)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// totals sums received and expected bytes over all tracked downloads.
// Downloads in a terminal state count with what they received. total is -1
// if any active download has an unknown size.
func (r *Reporter) totals() (received, total int64, active int) {
	r.mu.Lock()
	downloads := append([]*download.Download(nil), r.downloads...)
	r.mu.Unlock()

	unknown := false
	for _, d := range downloads {
		n := d.BytesReceived()
		received += n
		if !d.State().IsActive() {
			total += n
			continue
		}

		active++
		if size := d.ContentLength(); size >= 0 {
			total += size
		} else {
			unknown = true
		}
	}
	if unknown {
		total = -1
	}
	return received, total, active
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	received, total, active := r.totals()
	if active == 0 {
		return
	}

	r.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(received-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = received
	r.mu.Unlock()

	if total <= 0 {
		r.printf("\rProgress: %s | Speed: %s/s | Active: %d    ",
			FormatBytes(received),
			FormatBytes(int64(speed)),
			active,
		)
		return
	}

	percent := float64(received) / float64(total) * 100
	eta := "calculating..."
	if speed > 0 {
		remaining := float64(total - received)
		eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
	}

	r.printf("\rProgress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		percent,
		FormatBytes(received),
		FormatBytes(total),
		FormatBytes(int64(speed)),
		eta,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	received, _, _ := r.totals()

	r.mu.Lock()
	duration := time.Since(r.startTime)
	r.mu.Unlock()

	avgSpeed := float64(received) / duration.Seconds()
	r.printf("\rTotal: %s | %d finished | %d failed | Time: %s | Average speed: %s/s\n",
		FormatBytes(received),
		r.completed.Load(),
		r.failed.Load(),
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// printf writes one prefixed line. A leading \r is kept in front of the
// prefix so the line overwrites the previous progress output.
func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.HasPrefix(format, "\r") {
		format = format[1:]
		io.WriteString(r.opts.Output, "\r")
	}
	fmt.Fprintf(r.opts.Output, "%s ", r.opts.Prefix)
	fmt.Fprintf(r.opts.Output, format, args...)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats bytes as a human-readable IEC string (e.g. "1.5 MiB").
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a human-readable byte string (e.g., "256MiB" or "1MB").
// IEC suffixes are powers of 1024, SI suffixes powers of 1000.
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("byte string out of range: %s", s)
	}
	return int64(n), nil
}
