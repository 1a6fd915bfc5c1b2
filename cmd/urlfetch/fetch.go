package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"golang.org/x/sync/errgroup"

	"github.com/ligustah/urlfetch/internal/config"
	"github.com/ligustah/urlfetch/internal/download"
	fetchhttp "github.com/ligustah/urlfetch/internal/http"
	"github.com/ligustah/urlfetch/internal/metrics"
	"github.com/ligustah/urlfetch/internal/progress"
	"github.com/ligustah/urlfetch/internal/publish"
)

var (
	errInterrupted = errors.New("interrupted")
	errStatus      = errors.New("unsuccessful response")
	errPublish     = errors.New("publish failed")
)

// job is one URL and where its result goes.
type job struct {
	url    string
	path   string // "" writes the body to stdout
	object string // "" skips publishing
}

// runFetch downloads every URL argument as an independent download.
func runFetch(args []string, stdout, stderr io.Writer) int {
	// The logger, the progress reporter and this function all write here.
	stderr = &lockedWriter{w: stderr}

	fs := flag.NewFlagSet("urlfetch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "YAML config file (default "+config.DefaultPath()+")")
	output := fs.String("o", "", "Write the body to this file (single URL only)")
	outputDir := fs.String("d", "", "Write each body into this directory, named after the URL")
	method := fs.String("X", "", "Request method (default GET, or POST with -data)")
	var headers headerFlag
	fs.Var(&headers, "H", "Request header 'Name: value' (repeatable)")
	body := fs.String("data", "", "Request body")
	timeout := fs.Duration("timeout", 0, "Timeout per download (default 60s)")
	chunkSize := fs.String("chunk-size", "", "Size of each body read (default 32KiB)")
	parallel := fs.Int("parallel", 0, "Maximum concurrent downloads (0 = unlimited)")
	showProgress := fs.Bool("progress", false, "Show progress output")
	bucket := fs.String("bucket", "", "Publish finished downloads to this bucket URL")
	prefix := fs.String("prefix", "", "Object key prefix for published downloads")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	verbose := fs.Bool("v", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: urlfetch [options] URL...

Download each URL concurrently. Without -o or -d, bodies are written to
stdout in argument order once all downloads are done.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return ExitInvalidArgs
	}

	override := config.Config{
		URLs:        fs.Args(),
		Output:      *output,
		OutputDir:   *outputDir,
		Method:      strings.ToUpper(*method),
		Body:        *body,
		Timeout:     *timeout,
		Progress:    *showProgress,
		Bucket:      *bucket,
		Prefix:      *prefix,
		MetricsAddr: *metricsAddr,
		Verbose:     *verbose,
	}
	if len(headers) > 0 {
		if override.Headers, err = config.ParseHeaders(headers); err != nil {
			fmt.Fprintf(stderr, "Invalid header: %v\n", err)
			return ExitInvalidArgs
		}
	}
	if *chunkSize != "" {
		if override.ChunkSize, err = progress.ParseBytes(*chunkSize); err != nil {
			fmt.Fprintf(stderr, "Invalid chunk size: %v\n", err)
			return ExitInvalidArgs
		}
	}
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}
	if *parallel < 0 {
		fmt.Fprintln(stderr, "Error: -parallel must not be negative")
		return ExitInvalidArgs
	}

	jobs, err := plan(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n[urlfetch] Received interrupt, canceling downloads...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return fetch(ctx, cfg, jobs, *parallel, stdout, stderr)
}

// loadConfig applies, in order: defaults, the config file, .env files and
// the environment. A missing default config file is not an error.
func loadConfig(path string) (config.Config, error) {
	if err := config.LoadEnvFiles("."); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil || explicit {
		if cfg, err = config.LoadFromFile(path); err != nil {
			return config.Config{}, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// plan resolves output paths and object keys for every URL.
func plan(cfg config.Config) ([]job, error) {
	jobs := make([]job, 0, len(cfg.URLs))
	names := make(map[string]string)

	for _, raw := range cfg.URLs {
		j := job{url: raw}
		name := fileName(raw)

		if cfg.OutputDir != "" || cfg.Bucket != "" {
			if prev, ok := names[name]; ok {
				return nil, fmt.Errorf("%s and %s both resolve to %q", prev, raw, name)
			}
			names[name] = raw
		}

		switch {
		case cfg.Output != "":
			j.path = cfg.Output
		case cfg.OutputDir != "":
			j.path = filepath.Join(cfg.OutputDir, name)
		}
		if cfg.Bucket != "" {
			j.object = cfg.Prefix + name
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// fileName derives a local name from the last URL path segment.
func fileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "index.html"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "index.html"
	}
	return name
}

func fetch(ctx context.Context, cfg config.Config, jobs []job, parallel int, stdout, stderr io.Writer) int {
	log := newLogger(stderr, cfg.Verbose)

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			fmt.Fprintf(stderr, "Error creating output directory: %v\n", err)
			return ExitOutputError
		}
	}

	// Open bucket
	var pub *publish.Publisher
	if cfg.Bucket != "" {
		bkt, err := blob.OpenBucket(ctx, cfg.Bucket)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening bucket: %v\n", err)
			return ExitStorageError
		}
		defer bkt.Close()
		pub = publish.New(bkt, publish.Options{Overwrite: true})
	}

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector("urlfetch")
		collector.MustRegister(reg)

		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
		defer srv.Close()
		log.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{Output: stderr})
	}

	httpOpts := fetchhttp.DefaultOptions()
	httpOpts.ChunkSize = int(cfg.ChunkSize)
	transport := fetchhttp.NewClient(httpOpts)

	header := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	downloads := make([]*download.Download, len(jobs))
	for i, j := range jobs {
		opts := []download.Option{
			download.WithTransport(transport),
			download.WithLogger(log),
			download.WithTimeout(cfg.Timeout),
			download.WithHeaders(header),
		}
		if cfg.Method != "" {
			opts = append(opts, download.WithMethod(cfg.Method))
		}
		if cfg.Body != "" {
			opts = append(opts, download.WithBody([]byte(cfg.Body)))
		}
		if j.path != "" {
			opts = append(opts, download.ToFile(j.path))
		}

		d := download.New(j.url, opts...)
		if collector != nil {
			collector.Observe(d)
		}
		if reporter != nil {
			reporter.Track(d)
		}
		downloads[i] = d
	}

	if reporter != nil {
		reporter.Start()
	}

	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	errs := make([]error, len(jobs))
	for i, d := range downloads {
		i, d := i, d
		g.Go(func() error {
			errs[i] = transfer(ctx, d, jobs[i], pub, log)
			return errs[i]
		})
	}
	firstErr := g.Wait()

	if reporter != nil {
		reporter.Stop()
	}

	code := ExitSuccess
	for i, d := range downloads {
		j := jobs[i]
		if errs[i] != nil {
			if !errors.Is(errs[i], errInterrupted) {
				fmt.Fprintf(stderr, "Error: %s: %v\n", j.url, errs[i])
			}
			if code == ExitSuccess {
				code = exitCode(errs[i])
			}
		}
		if j.path == "" && d.Downloaded() {
			if _, err := stdout.Write(d.Bytes()); err != nil {
				fmt.Fprintf(stderr, "Error writing output: %v\n", err)
				if code == ExitSuccess {
					code = ExitOutputError
				}
			}
		}
	}

	if errors.Is(firstErr, errInterrupted) || ctx.Err() != nil {
		fmt.Fprintln(stderr, "[urlfetch] Downloads interrupted")
	}
	return code
}

// transfer runs a single download to completion and publishes its result.
func transfer(ctx context.Context, d *download.Download, j job, pub *publish.Publisher, log logrus.FieldLogger) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	d.Wait()

	switch d.State() {
	case download.StateCanceled:
		return errInterrupted
	case download.StateFailed:
		return d.Err()
	}

	entry := log.WithFields(logrus.Fields{
		"url":    d.URL(),
		"status": d.StatusCode(),
		"bytes":  progress.FormatBytes(d.BytesReceived()),
	})
	if j.path != "" {
		entry = entry.WithField("path", d.ResultPath())
	}

	if err := fetchhttp.CheckStatus(d.StatusCode()); err != nil {
		entry.Warn("download finished with unsuccessful status")
		return fmt.Errorf("%w: %w", errStatus, err)
	}
	entry.Info("download complete")

	if pub != nil {
		m, err := pub.Publish(ctx, d, j.object)
		if err != nil {
			return fmt.Errorf("%w: %w", errPublish, err)
		}
		entry.WithFields(logrus.Fields{
			"object":   m.Object,
			"checksum": m.Checksum,
		}).Info("published")
	}
	return nil
}

// exitCode maps a download error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errInterrupted):
		return ExitInterrupted
	case errors.Is(err, errStatus):
		return ExitHTTPError
	case errors.Is(err, errPublish):
		return ExitStorageError
	}

	switch download.KindOf(err) {
	case download.KindConnect:
		return ExitConnectFailed
	case download.KindTransfer:
		return ExitTransferFailed
	case download.KindTimeout:
		return ExitTimeout
	case download.KindOutput:
		return ExitOutputError
	}

	if errors.Is(err, download.ErrNoURL) {
		return ExitInvalidArgs
	}
	return ExitGeneralError
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func newLogger(out io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		TimestampFormat:  time.RFC3339,
		QuoteEmptyFields: true,
	})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// lockedWriter serializes writes from concurrent goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
