package remotedoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultConnectTimeout = 10 * time.Second

// S3Client stores documents as objects of one bucket.
type S3Client struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3Client connects to the endpoint and makes sure the bucket exists.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint cannot be empty")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name is empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	c := &S3Client{client: client, cfg: cfg}
	if err := c.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *S3Client) ensureBucketExists(ctx context.Context) error {
	timeout := c.cfg.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bucket := c.cfg.BucketName
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists, bucket: %v, err: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if !c.cfg.CreateBucket {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

func (c *S3Client) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	_, err := c.client.PutObject(ctx, c.cfg.BucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to upload document %s: %w", key, err)
	}
	return nil
}

func (c *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	obj, err := c.client.GetObject(ctx, c.cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.translateError(key, err)
	}
	defer obj.Close()

	// a missing object only shows up on the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, c.translateError(key, err)
	}
	return data, nil
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := c.client.RemoveObject(ctx, c.cfg.BucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", key, err)
	}
	return nil
}

func (c *S3Client) translateError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("failed to download document %s: %w", key, err)
}
