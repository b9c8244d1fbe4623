// Package snapshot copies the file-backed ledger document to S3.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// Source produces the bytes to back up.
type Source interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// ObjectPutter is the part of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadResult describes a stored snapshot.
type UploadResult struct {
	BucketName string
	ObjectKey  string
	Size       int64
}

// Snapshotter uploads timestamped copies of a Source.
type Snapshotter struct {
	source Source
	client ObjectPutter
	bucket string
	prefix string
	clock  func() time.Time
}

func New(source Source, client ObjectPutter, bucket, prefix string) *Snapshotter {
	return &Snapshotter{
		source: source,
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		clock:  time.Now,
	}
}

// ObjectKey returns the key for a snapshot taken at t:
// <prefix>/YYYY/MM/ledger-<UTC timestamp>.json
func (s *Snapshotter) ObjectKey(t time.Time) string {
	t = t.UTC()
	name := fmt.Sprintf("%04d/%02d/ledger-%s.json", t.Year(), int(t.Month()), t.Format("20060102T150405Z"))
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Run uploads one snapshot.
func (s *Snapshotter) Run(ctx context.Context) (*UploadResult, error) {
	data, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger snapshot: %w", err)
	}

	key := s.ObjectKey(s.clock())
	log.Infof("[Snapshot] Starting upload: s3://%s/%s (Size: %d bytes)", s.bucket, key, len(data))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"upload-source": "ledger-snapshot",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Infof("[Snapshot] Successfully uploaded: s3://%s/%s", s.bucket, key)
	return &UploadResult{BucketName: s.bucket, ObjectKey: key, Size: int64(len(data))}, nil
}

// Schedule runs a snapshot on every tick of spec until the returned cron is stopped.
func (s *Snapshotter) Schedule(spec string, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := s.Run(ctx); err != nil {
			log.Errorf("[Snapshot] scheduled snapshot failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
