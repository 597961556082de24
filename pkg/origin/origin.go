// Package origin resolves where a report ingestion runs from: an explicit
// override, or the public IP returned by an IP-echo service.
package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps the IP-echo response; an address is never this long.
const maxBodyBytes = 1 << 10

// Resolver resolves the origin string recorded on a session.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Compile-time interface check.
var _ Resolver = (*resolver)(nil)

type resolver struct {
	log      logrus.FieldLogger
	explicit string
	url      string
	client   *http.Client
}

// NewResolver creates a Resolver. A non-empty explicit origin is returned
// as is and no request is made.
func NewResolver(
	log logrus.FieldLogger,
	explicit string,
	url string,
	timeout time.Duration,
) Resolver {
	return &resolver{
		log:      log.WithField("component", "origin"),
		explicit: strings.TrimSpace(explicit),
		url:      url,
		client:   &http.Client{Timeout: timeout},
	}
}

// Resolve returns the explicit origin, or issues one GET against the
// IP-echo service. There is no retry; any failure fails the ingestion.
func (r *resolver) Resolve(ctx context.Context) (string, error) {
	if r.explicit != "" {
		return r.explicit, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", fmt.Errorf("building ip lookup request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("looking up public ip: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("looking up public ip: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading ip lookup response: %w", err)
	}

	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", fmt.Errorf("looking up public ip: empty response")
	}

	r.log.WithField("origin", ip).Debug("Resolved public ip")

	return ip, nil
}
