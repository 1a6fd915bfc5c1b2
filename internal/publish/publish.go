package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/urlfetch/internal/download"
)

var (
	// ErrNotFinished is returned when publishing a download that did not
	// finish successfully.
	ErrNotFinished = errors.New("publish: download not finished")

	// ErrNotPublished is returned when an object has no manifest.
	ErrNotPublished = errors.New("publish: object not published")

	// ErrChecksumMismatch is returned by Verify when the stored object does
	// not match its manifest.
	ErrChecksumMismatch = errors.New("publish: checksum mismatch")
)

// ManifestSuffix is appended to the object key to form the manifest key.
const ManifestSuffix = ".manifest.json"

// Manifest describes a published download.
type Manifest struct {
	Object      string            `json:"object"`
	Size        int64             `json:"size"`
	Checksum    string            `json:"checksum"`
	SourceURL   string            `json:"source_url"`
	StatusCode  int               `json:"status_code"`
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Options configures a Publisher.
type Options struct {
	// Metadata is stored with every object and manifest.
	Metadata map[string]string
	// Overwrite replaces objects that already have a manifest.
	Overwrite bool
}

// Publisher uploads finished downloads into a bucket.
type Publisher struct {
	bucket *blob.Bucket
	opts   Options
}

// New returns a Publisher writing to bucket. The caller keeps ownership of
// the bucket.
func New(bucket *blob.Bucket, opts Options) *Publisher {
	return &Publisher{bucket: bucket, opts: opts}
}

// Publish uploads the result of d under object and writes its manifest.
// Buffered downloads are uploaded from memory, file downloads from their
// result path.
//
// Returns an error if:
//   - d did not finish successfully (ErrNotFinished)
//   - object already has a manifest and Overwrite is not set (os.ErrExist)
//   - reading the result or writing to storage fails
func (p *Publisher) Publish(ctx context.Context, d *download.Download, object string) (*Manifest, error) {
	if !d.Downloaded() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFinished, d.URL(), d.State())
	}

	if !p.opts.Overwrite {
		exists, err := p.bucket.Exists(ctx, object+ManifestSuffix)
		if err != nil {
			return nil, fmt.Errorf("publish: check manifest: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("publish: %s: %w", object, os.ErrExist)
		}
	}

	src, err := open(d)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	contentType := d.ResponseHeader().Get("Content-Type")
	metadata := map[string]string{
		"source_url":  d.URL(),
		"status_code": strconv.Itoa(d.StatusCode()),
	}
	for k, v := range p.opts.Metadata {
		metadata[k] = v
	}

	size, checksum, err := p.upload(ctx, object, src, contentType, metadata)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Object:      object,
		Size:        size,
		Checksum:    checksum,
		SourceURL:   d.URL(),
		StatusCode:  d.StatusCode(),
		ContentType: contentType,
		Metadata:    p.opts.Metadata,
		CompletedAt: time.Now().UTC(),
	}
	if err := p.writeManifest(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func open(d *download.Download) (io.ReadCloser, error) {
	if path := d.ResultPath(); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("publish: open result: %w", err)
		}
		return f, nil
	}
	return io.NopCloser(bytes.NewReader(d.Bytes())), nil
}

func (p *Publisher) upload(ctx context.Context, object string, src io.Reader, contentType string, metadata map[string]string) (int64, string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := p.bucket.NewWriter(ctx, object, &blob.WriterOptions{
		ContentType: contentType,
		Metadata:    metadata,
	})
	if err != nil {
		return 0, "", fmt.Errorf("publish: create writer: %w", err)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), src)
	if err != nil {
		// Canceling the context before Close discards the object.
		cancel()
		w.Close()
		return 0, "", fmt.Errorf("publish: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return 0, "", fmt.Errorf("publish: close %s: %w", object, err)
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func (p *Publisher) writeManifest(ctx context.Context, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("publish: marshal manifest: %w", err)
	}
	if err := p.bucket.WriteAll(ctx, m.Object+ManifestSuffix, data, &blob.WriterOptions{
		ContentType: "application/json",
	}); err != nil {
		return fmt.Errorf("publish: write manifest: %w", err)
	}
	return nil
}

// ReadManifest returns the manifest of object, or ErrNotPublished.
func (p *Publisher) ReadManifest(ctx context.Context, object string) (*Manifest, error) {
	data, err := p.bucket.ReadAll(ctx, object+ManifestSuffix)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotPublished, object)
		}
		return nil, fmt.Errorf("publish: read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("publish: unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Verify re-reads object and compares it with its manifest.
func (p *Publisher) Verify(ctx context.Context, object string) (*Manifest, error) {
	m, err := p.ReadManifest(ctx, object)
	if err != nil {
		return nil, err
	}

	r, err := p.bucket.NewReader(ctx, object, nil)
	if err != nil {
		return m, fmt.Errorf("publish: open %s: %w", object, err)
	}
	defer r.Close()

	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return m, fmt.Errorf("publish: read %s: %w", object, err)
	}
	if n != m.Size || hex.EncodeToString(h.Sum(nil)) != m.Checksum {
		return m, fmt.Errorf("%w: %s", ErrChecksumMismatch, object)
	}
	return m, nil
}

// Delete removes object and its manifest. Missing objects are ignored, so
// Delete also cleans up interrupted publishes.
func (p *Publisher) Delete(ctx context.Context, object string) error {
	if err := p.bucket.Delete(ctx, object); err != nil && !isNotExist(err) {
		return fmt.Errorf("publish: delete %s: %w", object, err)
	}
	if err := p.bucket.Delete(ctx, object+ManifestSuffix); err != nil && !isNotExist(err) {
		return fmt.Errorf("publish: delete manifest: %w", err)
	}
	return nil
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
