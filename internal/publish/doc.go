// Package publish copies finished downloads into object storage.
//
// Storage is reached through gocloud.dev/blob, so any bucket URL with a
// registered driver works (s3://, gs://, file://, mem://).
//
// # Storage Layout
//
//	{bucket}/{object}
//	{bucket}/{object}.manifest.json
//
// The manifest is written after the object and records its size, SHA-256
// checksum, source URL and response status. An object without a manifest
// is an interrupted publish.
package publish
