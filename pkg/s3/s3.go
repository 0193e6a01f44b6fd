// Package s3 wraps the AWS SDK v2 S3 client with the primitives the
// registry needs: multipart uploads for streamed archives and presigned
// GET URLs for artifact downloads. It works against AWS proper as well as
// path-style S3-compatible endpoints (MinIO, SeaweedFS).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MinPartSize is the smallest part S3 accepts for any part except the
// last. Flush thresholds below this are rejected.
const MinPartSize = 5 * 1024 * 1024

// DefaultPartSize is used when a caller does not configure a threshold.
const DefaultPartSize = 8 * 1024 * 1024

// Config carries connection settings for the storage endpoint.
type Config struct {
	Endpoint       string // empty for AWS-managed endpoints
	Region         string
	AccessKey      string
	SecretKey      string
	DisableTLS     bool
	ForcePathStyle bool
}

// Client is a thin wrapper around the AWS SDK v2 S3 client.
type Client struct {
	api     *s3.Client
	presign *s3.PresignClient
}

// multipartAPI is the slice of the SDK client the multipart writer uses,
// kept narrow so tests can substitute a fake.
type multipartAPI interface {
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// NewClient initialises a Client from explicit configuration.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3: access key and secret key are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if cfg.DisableTLS {
			scheme = "http"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Client{api: api, presign: s3.NewPresignClient(api)}, nil
}

// NewClientFromEnv initialises a Client from environment variables.
//
// Required: S3_ACCESS_KEY, S3_SECRET_KEY.
// Optional: S3_ENDPOINT (absent for AWS), S3_REGION (default "us-east-1"),
// S3_DISABLE_TLS (bool), S3_FORCE_PATH_STYLE (bool; default true when an
// explicit endpoint is set).
func NewClientFromEnv(ctx context.Context) (*Client, error) {
	cfg := Config{
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:    os.Getenv("S3_REGION"),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
	}
	cfg.DisableTLS, _ = strconv.ParseBool(os.Getenv("S3_DISABLE_TLS"))

	cfg.ForcePathStyle = cfg.Endpoint != ""
	if v := strings.TrimSpace(os.Getenv("S3_FORCE_PATH_STYLE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.ForcePathStyle = parsed
		}
	}

	return NewClient(ctx, cfg)
}

// PresignGet generates a presigned GET URL for the provided key and TTL.
func (c *Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if c == nil {
		return "", errors.New("s3: nil client")
	}

	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// MultipartUpload streams an object to S3 as buffered parts. It implements
// io.Writer: bytes accumulate in memory and are shipped as a part whenever
// the buffer reaches the configured part size, so peak memory stays a small
// constant multiple of that size regardless of object length.
//
// Exactly one of Complete or Abort must be called; until then the object
// key is not addressable.
type MultipartUpload struct {
	api      multipartAPI
	ctx      context.Context
	bucket   string
	key      string
	uploadID string
	partSize int

	buf   bytes.Buffer
	parts []s3types.CompletedPart
	total int64
	done  bool
}

// BeginMultipart opens a multipart upload for bucket/key. partSize is the
// flush threshold in bytes; zero selects DefaultPartSize. The provided
// context governs every part upload issued through Write.
func (c *Client) BeginMultipart(ctx context.Context, bucket, key, contentType string, partSize int) (*MultipartUpload, error) {
	if c == nil {
		return nil, errors.New("s3: nil client")
	}
	return beginMultipart(ctx, c.api, bucket, key, contentType, partSize)
}

func beginMultipart(ctx context.Context, api multipartAPI, bucket, key, contentType string, partSize int) (*MultipartUpload, error) {
	if partSize == 0 {
		partSize = DefaultPartSize
	}
	if partSize < MinPartSize {
		return nil, fmt.Errorf("s3: part size %d below provider minimum %d", partSize, MinPartSize)
	}

	in := &s3.CreateMultipartUploadInput{
		Bucket: &bucket,
		Key:    &key,
	}
	if contentType != "" {
		in.ContentType = &contentType
	}

	out, err := api.CreateMultipartUpload(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("s3: create multipart upload: %w", err)
	}

	return &MultipartUpload{
		api:      api,
		ctx:      ctx,
		bucket:   bucket,
		key:      key,
		uploadID: aws.ToString(out.UploadId),
		partSize: partSize,
	}, nil
}

// Write buffers p, flushing full parts as the threshold is crossed.
func (u *MultipartUpload) Write(p []byte) (int, error) {
	if u.done {
		return 0, errors.New("s3: multipart upload already finished")
	}
	u.buf.Write(p)
	for u.buf.Len() >= u.partSize {
		if err := u.flushPart(u.partSize); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Complete flushes any buffered remainder and finalises the upload. Only
// after Complete returns is the object visible under its key.
func (u *MultipartUpload) Complete(ctx context.Context) error {
	if u.done {
		return errors.New("s3: multipart upload already finished")
	}
	if u.buf.Len() > 0 || len(u.parts) == 0 {
		if err := u.flushPart(u.buf.Len()); err != nil {
			return err
		}
	}

	_, err := u.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &u.bucket,
		Key:      &u.key,
		UploadId: &u.uploadID,
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: u.parts,
		},
	})
	if err != nil {
		return fmt.Errorf("s3: complete multipart upload: %w", err)
	}
	u.done = true
	return nil
}

// Abort cancels the upload so the provider releases already-stored parts.
// Calling Abort after Complete is a no-op.
func (u *MultipartUpload) Abort(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	_, err := u.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   &u.bucket,
		Key:      &u.key,
		UploadId: &u.uploadID,
	})
	if err != nil {
		return fmt.Errorf("s3: abort multipart upload: %w", err)
	}
	return nil
}

// Parts reports the number of parts uploaded so far.
func (u *MultipartUpload) Parts() int { return len(u.parts) }

// BytesUploaded reports the total payload bytes shipped to the provider.
func (u *MultipartUpload) BytesUploaded() int64 { return u.total }

func (u *MultipartUpload) flushPart(n int) error {
	body := u.buf.Next(n)
	partNumber := int32(len(u.parts) + 1)

	out, err := u.api.UploadPart(u.ctx, &s3.UploadPartInput{
		Bucket:     &u.bucket,
		Key:        &u.key,
		UploadId:   &u.uploadID,
		PartNumber: &partNumber,
		Body:       bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("s3: upload part %d: %w", partNumber, err)
	}

	u.parts = append(u.parts, s3types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: &partNumber,
	})
	u.total += int64(len(body))
	return nil
}
