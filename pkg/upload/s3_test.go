package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/config"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name        string
		prefix      string
		environment string
		want        string
	}{
		{
			name:        "default prefix",
			environment: "staging",
			want:        "reports/staging/abc123.json",
		},
		{
			name:        "custom prefix",
			prefix:      "qa/mochawesome",
			environment: "prod",
			want:        "qa/mochawesome/prod/abc123.json",
		},
		{
			name:        "slashes trimmed",
			prefix:      "/archive/",
			environment: "Dev",
			want:        "archive/dev/abc123.json",
		},
		{
			name: "no environment",
			want: "reports/unknown/abc123.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.ArchiveConfig{Prefix: tt.prefix},
			}
			assert.Equal(t, tt.want, u.resolveKey(tt.environment, "abc123"))
		})
	}
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(logrus.New(), &config.ArchiveConfig{Enabled: true}, &config.S3Config{})
	require.Error(t, err)
}

func TestS3Uploader_Upload(t *testing.T) {
	var (
		mu      sync.Mutex
		objects = make(map[string]string, 2)
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)

			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		mu.Lock()
		objects[r.URL.Path] = string(body)
		mu.Unlock()

		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	u, err := NewS3Uploader(log,
		&config.ArchiveConfig{Enabled: true, Bucket: "qa"},
		&config.S3Config{
			EndpointURL:     srv.URL,
			Region:          "us-east-1",
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			ForcePathStyle:  true,
		},
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, u.Preflight(ctx))

	location, err := u.Upload(ctx, "staging", "abc123", []byte(`{"results":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://qa/reports/staging/abc123.json", location)

	mu.Lock()
	defer mu.Unlock()

	assert.Contains(t, objects, "/qa/"+preflightKey)
	assert.Equal(t, `{"results":[]}`, objects["/qa/reports/staging/abc123.json"])
}
