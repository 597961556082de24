package upload

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/source"
	"github.com/sirupsen/logrus"
)

const (
	defaultPrefix   = "reports"
	preflightKey    = ".reportoor-write-test"
	reportMediaType = "application/json"
)

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.ArchiveConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates a new S3 uploader. conn holds the endpoint and
// credentials; cfg names the bucket and key layout.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.ArchiveConfig,
	conn *config.S3Config,
) (Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: source.NewS3Client(conn),
	}, nil
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("reportoor write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(preflightKey),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

func (u *s3Uploader) Upload(
	ctx context.Context, environment, checksum string, data []byte,
) (string, error) {
	key := u.resolveKey(environment, checksum)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(reportMediaType),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	if u.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(u.cfg.ACL)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("PutObject: %w", err)
	}

	location := "s3://" + u.cfg.Bucket + "/" + key

	u.log.WithFields(logrus.Fields{
		"location": location,
		"bytes":    len(data),
	}).Info("Report archived")

	return location, nil
}

// resolveKey builds the object key of an archived report.
func (u *s3Uploader) resolveKey(environment, checksum string) string {
	prefix := u.cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	env := strings.ToLower(strings.TrimSpace(environment))
	if env == "" {
		env = "unknown"
	}

	return strings.Trim(prefix, "/") + "/" + env + "/" + checksum + ".json"
}
