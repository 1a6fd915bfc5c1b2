package progress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ligustah/urlfetch/internal/download"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{256 * 1024 * 1024, "256 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TiB"},
		{2.5 * 1024 * 1024 * 1024 * 1024, "2.5 TiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"256MiB", 256 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"1TiB", 1024 * 1024 * 1024 * 1024},
		// SI units
		{"1KB", 1000},
		{"1MB", 1000 * 1000},
		{"1GB", 1000 * 1000 * 1000},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	_, err := ParseBytes("invalid")
	if err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestParseBytesOutOfRange(t *testing.T) {
	for _, s := range []string{"10EiB", "16 EiB"} {
		if n, err := ParseBytes(s); err == nil {
			t.Errorf("ParseBytes(%q) = %d, expected error", s, n)
		}
	}
}

// scripted returns a transport that connects and delivers chunks.
func scripted(status int, chunks ...string) download.Transport {
	return download.TransportFunc(func(_ context.Context, _ *download.Request, r download.Receiver) error {
		if err := r.Connected(status, http.Header{"Content-Length": {"10"}}); err != nil {
			return err
		}
		for _, c := range chunks {
			if err := r.Chunk([]byte(c)); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestReporterTracking(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(Options{
		Output:         &out,
		UpdateInterval: 100 * time.Millisecond,
	})

	ok := download.New("https://example.com/ok", download.WithTransport(scripted(200, "hello", "world")))
	bad := download.New("https://example.com/bad", download.WithTransport(
		download.TransportFunc(func(context.Context, *download.Request, download.Receiver) error {
			return errors.New("connection refused")
		}),
	))
	reporter.Track(ok)
	reporter.Track(bad)

	for _, d := range []*download.Download{ok, bad} {
		if err := d.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	ok.Wait()
	bad.Wait()

	if reporter.Completed() != 1 {
		t.Errorf("expected 1 completed, got %d", reporter.Completed())
	}
	if reporter.Failed() != 1 {
		t.Errorf("expected 1 failed, got %d", reporter.Failed())
	}
	if reporter.Chunks() != 2 {
		t.Errorf("expected 2 chunks, got %d", reporter.Chunks())
	}

	received, total, active := reporter.totals()
	if received != 10 {
		t.Errorf("expected 10 bytes received, got %d", received)
	}
	if total != 10 {
		t.Errorf("expected total of 10 bytes, got %d", total)
	}
	if active != 0 {
		t.Errorf("expected no active downloads, got %d", active)
	}

	output := out.String()
	if !strings.Contains(output, "[urlfetch] Finished: https://example.com/ok (200, 10 B") {
		t.Errorf("missing finished line in output: %q", output)
	}
	if !strings.Contains(output, "[urlfetch] Failed: https://example.com/bad") {
		t.Errorf("missing failed line in output: %q", output)
	}
}

func TestReporterStartStop(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(Options{
		Output:         &out,
		UpdateInterval: 10 * time.Millisecond,
		Prefix:         "[test]",
	})

	release := make(chan struct{})
	d := download.New("https://example.com/file.bin", download.WithTransport(
		download.TransportFunc(func(_ context.Context, _ *download.Request, r download.Receiver) error {
			if err := r.Connected(200, http.Header{"Content-Length": {"10"}}); err != nil {
				return err
			}
			if err := r.Chunk([]byte("hello")); err != nil {
				return err
			}
			<-release
			return r.Chunk([]byte("world"))
		}),
	))
	reporter.Track(d)

	reporter.Start()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // Let updates run
	close(release)
	d.Wait()

	reporter.Stop()
	reporter.Stop()

	output := out.String()
	if !strings.Contains(output, "[test] Downloading: https://example.com/file.bin") {
		t.Errorf("missing header in output: %q", output)
	}
	if !strings.Contains(output, "[test] Progress: 50.0% | 5 B / 10 B") {
		t.Errorf("missing progress line in output: %q", output)
	}
	if !strings.Contains(output, "[test] Total: 10 B | 1 finished | 0 failed") {
		t.Errorf("missing summary in output: %q", output)
	}
}

func TestReporterStopWithoutStart(t *testing.T) {
	reporter := NewReporter(Options{Output: io.Discard})
	reporter.Stop()
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{3 * time.Second, "3s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute + 7*time.Second, "2h 5m 7s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.input); got != tt.expected {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestReporterTotalsIgnoreFinishedUnknownSize(t *testing.T) {
	reporter := NewReporter(Options{Output: io.Discard})

	finished := download.New("https://example.com/chunked", download.WithTransport(
		download.TransportFunc(func(_ context.Context, _ *download.Request, r download.Receiver) error {
			if err := r.Connected(200, http.Header{}); err != nil {
				return err
			}
			return r.Chunk([]byte("abcd"))
		}),
	))
	received := make(chan struct{})
	running := download.New("https://example.com/sized", download.WithTransport(
		download.TransportFunc(func(ctx context.Context, _ *download.Request, r download.Receiver) error {
			if err := r.Connected(200, http.Header{"Content-Length": {"10"}}); err != nil {
				return err
			}
			if err := r.Chunk([]byte("hello")); err != nil {
				return err
			}
			close(received)
			<-ctx.Done()
			return ctx.Err()
		}),
	))
	reporter.Track(finished)
	reporter.Track(running)

	if err := finished.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	finished.Wait()
	if finished.ContentLength() >= 0 {
		t.Fatalf("expected unknown content length, got %d", finished.ContentLength())
	}

	if err := running.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		running.Cancel()
		running.Wait()
	}()
	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first chunk")
	}

	got, total, active := reporter.totals()
	if got != 9 {
		t.Errorf("expected 9 bytes received, got %d", got)
	}
	if total != 14 {
		t.Errorf("expected total of 14 bytes, got %d", total)
	}
	if active != 1 {
		t.Errorf("expected 1 active download, got %d", active)
	}
}
