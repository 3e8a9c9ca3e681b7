package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

// Internal adapter interface to enable mocking without a real MinIO server.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketPolicy(ctx context.Context, bucketName, policy string) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Config contains MinIO connection parameters.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

var _ Uploader = (*Client)(nil)

type Client struct {
	api       minioAPI
	bucket    string
	publicURL string
}

// NewClient connects to MinIO and makes sure the bucket exists.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return NewClientWithAPI(ctx, mc, cfg.Bucket, cfg.PublicURL)
}

// NewClientWithAPI allows injecting a mockable API (used in tests).
func NewClientWithAPI(ctx context.Context, api minioAPI, bucket, publicURL string) (*Client, error) {
	c := &Client{
		api:       api,
		bucket:    bucket,
		publicURL: publicURL,
	}
	if err := c.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return c, nil
}

// ensureBucketExists creates the bucket with anonymous read access if it
// doesn't exist.
func (c *Client) ensureBucketExists(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	if err := c.api.SetBucketPolicy(ctx, c.bucket, publicReadPolicy(c.bucket)); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}
	return nil
}

// Upload puts the file at localPath under a fresh key and returns its URL.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	defer os.Remove(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat upload: %w", err)
	}
	contentType, err := detectContentType(f, localPath)
	if err != nil {
		return "", err
	}

	key := utilities.NewKSUID() + strings.ToLower(filepath.Ext(localPath))
	_, err = c.api.PutObject(ctx, c.bucket, key, f, info.Size(), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return url.JoinPath(c.publicURL, c.bucket, key)
}

// Delete removes the object behind a URL returned by Upload. URLs outside the
// bucket are rejected.
func (c *Client) Delete(ctx context.Context, objectURL string) error {
	base, err := url.JoinPath(c.publicURL, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to build bucket url: %w", err)
	}
	key, ok := strings.CutPrefix(objectURL, base+"/")
	if !ok || key == "" {
		return fmt.Errorf("object url %q is not in bucket %s", objectURL, c.bucket)
	}
	if err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

// detectContentType prefers the extension and falls back to sniffing. The
// reader is rewound afterwards.
func detectContentType(f *os.File, path string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct, nil
	}
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

func publicReadPolicy(bucket string) string {
	return `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},` +
		`"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::` + bucket + `/*"]}]}`
}
