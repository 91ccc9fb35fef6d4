// Package artifact uploads run outputs to S3-compatible object storage.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/foundermatch/internal/export"
	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/tracing"
)

// SinkName identifies the S3 sink in logs and metrics.
const SinkName = "s3"

// Object names written per run. ManifestFile is also written as LatestFile at the prefix root.
const (
	ManifestFile = "run.json"
	LatestFile   = "latest.json"
)

// Content types of uploaded objects.
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeCBOR = "application/cbor"
	ContentTypeJSON = "application/json"
)

// DefaultURLExpiry bounds presigned download links.
const DefaultURLExpiry = 15 * time.Minute

// Configuration and key errors.
var (
	ErrMissingBucket      = errors.New("bucket name is required")
	ErrMissingCredentials = errors.New("access key ID and secret access key are required")
	ErrInvalidRunID       = errors.New("invalid run id")
)

// ObjectAPI is the subset of the S3 client the uploader needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds configuration for the uploader.
type Config struct {
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint selects an S3-compatible service (R2, MinIO). Empty uses AWS.
	Endpoint string
	// Region defaults to "auto".
	Region string
	// Prefix is prepended to every key; "foundermatch" yields "foundermatch/runs/...".
	Prefix    string
	URLExpiry time.Duration
}

// Manifest describes one uploaded run.
type Manifest struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	Founders   int               `json:"founders"`
	Providers  int               `json:"providers"`
	SkippedIDs []string          `json:"skipped_ids,omitempty"`
	Objects    map[string]string `json:"objects"`
}

// Uploader writes run outputs under {prefix}runs/{run_id}/.
type Uploader struct {
	client    ObjectAPI
	presign   func(ctx context.Context, key string, expiry time.Duration) (string, error)
	bucket    string
	prefix    string
	urlExpiry time.Duration
	timeNow   func() time.Time
}

// NewUploader creates an uploader backed by a new S3 client.
func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)
	presignClient := s3.NewPresignClient(client)

	u := NewUploaderWithClient(client, cfg)
	u.presign = func(ctx context.Context, key string, expiry time.Duration) (string, error) {
		req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(key),
		}, func(o *s3.PresignOptions) {
			o.Expires = expiry
		})
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}
	return u, nil
}

// NewUploaderWithClient creates an uploader around an existing client.
// Presigned links are unavailable until a presigner is set by NewUploader.
func NewUploaderWithClient(client ObjectAPI, cfg Config) *Uploader {
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = DefaultURLExpiry
	}
	return &Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    KeyPrefix(cfg.Prefix),
		urlExpiry: cfg.URLExpiry,
		timeNow:   time.Now,
	}
}

// Bucket returns the target bucket.
func (u *Uploader) Bucket() string { return u.bucket }

// Client returns the object client uploads go through.
func (u *Uploader) Client() ObjectAPI { return u.client }

// ObjectKey returns the key of name within run runID.
func (u *Uploader) ObjectKey(runID, name string) (string, error) {
	if !validRunID(runID) {
		return "", ErrInvalidRunID
	}
	return u.prefix + path.Join("runs", runID, name), nil
}

// validRunID accepts the characters of a UUID so ids can be placed in keys verbatim.
func validRunID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '-' {
			return false
		}
	}
	return true
}

// Name implements match.Sink.
func (u *Uploader) Name() string { return SinkName }

// Publish implements match.Sink. Data objects are uploaded first, then the run
// manifest, then latest.json, so latest.json only ever names complete runs.
func (u *Uploader) Publish(ctx context.Context, run *match.Run) (err error) {
	ctx, endSpan := tracing.StartClientSpan(ctx, "s3", "publish_run",
		attribute.String("match.run_id", run.ID),
		attribute.String("s3.bucket", u.bucket))
	defer func() { endSpan(err) }()

	objects := []struct {
		name        string
		contentType string
		encode      func(*bytes.Buffer) error
	}{
		{export.FounderMatchesFile, ContentTypeCSV, func(b *bytes.Buffer) error {
			return export.WriteMatchesCSV(b, match.FounderToProvider, run.FounderTopK)
		}},
		{export.ProviderMatchesFile, ContentTypeCSV, func(b *bytes.Buffer) error {
			return export.WriteMatchesCSV(b, match.ProviderToFounder, run.ProviderTopK)
		}},
		{export.MatrixFile, ContentTypeCBOR, func(b *bytes.Buffer) error {
			return export.EncodeMatrix(b, run.ID, run.Matrix)
		}},
	}

	manifest := Manifest{
		RunID:      run.ID,
		StartedAt:  run.StartedAt,
		Founders:   len(run.Founders),
		Providers:  len(run.Providers),
		SkippedIDs: run.Skipped,
		Objects:    make(map[string]string, len(objects)),
	}

	for _, obj := range objects {
		var buf bytes.Buffer
		if err := obj.encode(&buf); err != nil {
			return fmt.Errorf("encode %s: %w", obj.name, err)
		}
		key, err := u.ObjectKey(run.ID, obj.name)
		if err != nil {
			return err
		}
		if err := u.put(ctx, key, obj.contentType, buf.Bytes()); err != nil {
			return err
		}
		manifest.Objects[obj.name] = key
	}

	body, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	manifestKey, err := u.ObjectKey(run.ID, ManifestFile)
	if err != nil {
		return err
	}
	if err := u.put(ctx, manifestKey, ContentTypeJSON, body); err != nil {
		return err
	}
	return u.put(ctx, u.prefix+LatestFile, ContentTypeJSON, body)
}

func (u *Uploader) put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// DownloadLink is a presigned GET URL for one run object.
type DownloadLink struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DownloadLinks returns presigned links for the data objects of run runID.
func (u *Uploader) DownloadLinks(ctx context.Context, runID string) ([]DownloadLink, error) {
	if u.presign == nil {
		return nil, errors.New("presigning not configured")
	}

	names := []string{export.FounderMatchesFile, export.ProviderMatchesFile, export.MatrixFile}
	links := make([]DownloadLink, 0, len(names))
	expiresAt := u.timeNow().Add(u.urlExpiry)
	for _, name := range names {
		key, err := u.ObjectKey(runID, name)
		if err != nil {
			return nil, err
		}
		url, err := u.presign(ctx, key, u.urlExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to presign %s: %w", key, err)
		}
		links = append(links, DownloadLink{Name: name, URL: url, ExpiresAt: expiresAt})
	}
	return links, nil
}

// KeyPrefix normalizes a configured prefix so it is either empty or ends in "/".
func KeyPrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
