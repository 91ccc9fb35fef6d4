package health

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BucketHeader is the subset of the S3 client used for bucket checks.
type BucketHeader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Checker verifies the artifact bucket is reachable with the configured credentials.
type S3Checker struct {
	client BucketHeader
	bucket string
}

// NewS3Checker creates a new artifact bucket health checker.
func NewS3Checker(client BucketHeader, bucket string) *S3Checker {
	return &S3Checker{client: client, bucket: bucket}
}

// HealthCheck issues a HeadBucket request.
func (c *S3Checker) HealthCheck(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	return err
}
