// Package upload archives ingested reports to remote storage.
package upload

import "context"

// Uploader stores raw report documents after they were ingested.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload stores a report under <prefix>/<environment>/<checksum>.json
	// and returns its s3:// location.
	Upload(ctx context.Context, environment, checksum string, data []byte) (string, error)
}
