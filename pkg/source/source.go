// Package source reads report documents from the local filesystem or
// from S3-compatible storage.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/reportoor/pkg/config"
)

// s3Scheme prefixes report locations stored in a bucket.
const s3Scheme = "s3://"

// ErrNotFound is returned when the report location does not exist.
var ErrNotFound = errors.New("report not found")

// Reader reads a whole report document.
type Reader interface {
	Read(ctx context.Context, location string) ([]byte, error)
}

// NewReader returns the Reader able to serve location: S3 for s3://
// locations (when enabled), the local filesystem otherwise.
func NewReader(cfg *config.SourceConfig, location string) (Reader, error) {
	if !IsS3(location) {
		return NewLocalReader(), nil
	}

	if !cfg.S3.Enabled {
		return nil, fmt.Errorf("%q is an s3 location but source.s3 is not enabled", location)
	}

	return NewS3Reader(&cfg.S3), nil
}

// IsS3 reports whether location is an s3:// URL.
func IsS3(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// ParseS3Location splits s3://bucket/key into bucket and key.
func ParseS3Location(location string) (bucket, key string, err error) {
	if !IsS3(location) {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}

	rest := strings.TrimPrefix(location, s3Scheme)

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || strings.Trim(key, "/") == "" {
		return "", "", fmt.Errorf("s3 location needs a bucket and a key: %q", location)
	}

	return bucket, key, nil
}
