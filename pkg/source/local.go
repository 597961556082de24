package source

import (
	"context"
	"fmt"
	"os"
)

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct{}

// NewLocalReader creates a Reader backed by the local filesystem.
func NewLocalReader() Reader {
	return &localReader{}
}

// Read returns the contents of the file at location.
func (r *localReader) Read(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(location) //nolint:gosec // path comes from the operator
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}

		return nil, fmt.Errorf("reading file %s: %w", location, err)
	}

	return data, nil
}
