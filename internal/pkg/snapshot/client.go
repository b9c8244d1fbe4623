package snapshot

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/jaat-ai/ledger/internal/pkg/env"
)

// NewS3Client builds an S3 client for the snapshot bucket and checks that the
// bucket is reachable. S3_ENDPOINT_URL selects an S3 compatible service.
func NewS3Client(ctx context.Context, cfg *env.Config) (*s3.Client, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.S3Bucket)}); err != nil {
		return nil, fmt.Errorf("bucket %s not accessible: %w", cfg.S3Bucket, err)
	}

	log.Infof("[Snapshot] S3 client ready for bucket: %s", cfg.S3Bucket)
	return client, nil
}
