package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMinio implements minioAPI for testing without network.
type fakeMinio struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	policyErr       error
	madeBucket      bool
	policy          string

	putErr      error
	removeErr   error
	removedKey  string
	putKey      string
	putSize     int64
	putData     string
	contentType string
}

func (f *fakeMinio) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}
func (f *fakeMinio) MakeBucket(_ context.Context, _ string, _ minioLib.MakeBucketOptions) error {
	f.madeBucket = true
	return f.makeBucketErr
}
func (f *fakeMinio) SetBucketPolicy(_ context.Context, _ string, policy string) error {
	f.policy = policy
	return f.policyErr
}
func (f *fakeMinio) PutObject(_ context.Context, _ string, key string, r io.Reader, size int64, opts minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	if f.putErr != nil {
		return minioLib.UploadInfo{}, f.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return minioLib.UploadInfo{}, err
	}
	f.putKey, f.putSize, f.putData, f.contentType = key, size, string(b), opts.ContentType
	return minioLib.UploadInfo{Key: key, Size: size}, nil
}

func (f *fakeMinio) RemoveObject(_ context.Context, _ string, key string, _ minioLib.RemoveObjectOptions) error {
	f.removedKey = key
	return f.removeErr
}

func writeTemp(t *testing.T, name, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

func TestNewClientWithAPI_BucketExists(t *testing.T) {
	api := &fakeMinio{bucketExists: true}
	c, err := NewClientWithAPI(context.Background(), api, "b", "http://localhost:9000")
	require.NoError(t, err)
	assert.Equal(t, "b", c.bucket)
	assert.False(t, api.madeBucket)
}

func TestNewClientWithAPI_CreatesPublicBucket(t *testing.T) {
	api := &fakeMinio{}
	_, err := NewClientWithAPI(context.Background(), api, "media", "http://localhost:9000")
	require.NoError(t, err)
	assert.True(t, api.madeBucket)
	assert.Contains(t, api.policy, "arn:aws:s3:::media/*")
	assert.Contains(t, api.policy, "s3:GetObject")
}

func TestNewClientWithAPI_Errors(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeMinio
	}{
		{"exists check", &fakeMinio{bucketExistsErr: errors.New("boom")}},
		{"make bucket", &fakeMinio{makeBucketErr: errors.New("fail")}},
		{"policy", &fakeMinio{policyErr: errors.New("denied")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClientWithAPI(context.Background(), tt.api, "b", "")
			assert.Nil(t, c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to ensure bucket exists")
		})
	}
}

func TestClient_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("success removes local file", func(t *testing.T) {
		api := &fakeMinio{}
		c := &Client{api: api, bucket: "media", publicURL: "http://cdn.local/"}
		p := writeTemp(t, "avatar.PNG", "pngdata")

		u, err := c.Upload(ctx, p)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(u, "http://cdn.local/media/"))
		assert.True(t, strings.HasSuffix(u, api.putKey))
		assert.True(t, strings.HasSuffix(api.putKey, ".png"))
		assert.Equal(t, "image/png", api.contentType)
		assert.Equal(t, int64(7), api.putSize)
		assert.Equal(t, "pngdata", api.putData)
		assert.NoFileExists(t, p)
	})

	t.Run("sniffs content without extension", func(t *testing.T) {
		api := &fakeMinio{}
		c := &Client{api: api, bucket: "media", publicURL: "http://cdn.local"}
		p := writeTemp(t, "blob", "<html><body>x</body></html>")

		_, err := c.Upload(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "text/html; charset=utf-8", api.contentType)
		assert.Equal(t, "<html><body>x</body></html>", api.putData)
	})

	t.Run("failure still removes local file", func(t *testing.T) {
		api := &fakeMinio{putErr: errors.New("put-fail")}
		c := &Client{api: api, bucket: "media"}
		p := writeTemp(t, "cover.jpg", "jpg")

		_, err := c.Upload(ctx, p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload object")
		assert.NoFileExists(t, p)
	})

	t.Run("missing file", func(t *testing.T) {
		c := &Client{api: &fakeMinio{}, bucket: "media"}
		_, err := c.Upload(ctx, filepath.Join(t.TempDir(), "gone.png"))
		assert.Error(t, err)
	})
}

func TestClient_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes uploaded object", func(t *testing.T) {
		api := &fakeMinio{}
		c := &Client{api: api, bucket: "media", publicURL: "http://cdn.local"}
		u, err := c.Upload(ctx, writeTemp(t, "avatar.png", "png"))
		require.NoError(t, err)

		require.NoError(t, c.Delete(ctx, u))
		assert.Equal(t, api.putKey, api.removedKey)
	})

	t.Run("rejects foreign url", func(t *testing.T) {
		api := &fakeMinio{}
		c := &Client{api: api, bucket: "media", publicURL: "http://cdn.local"}

		for _, u := range []string{"http://other.host/media/a.png", "http://cdn.local/media/", "http://cdn.local/other/a.png"} {
			assert.Error(t, c.Delete(ctx, u), u)
		}
		assert.Empty(t, api.removedKey)
	})

	t.Run("store error", func(t *testing.T) {
		api := &fakeMinio{removeErr: errors.New("remove-fail")}
		c := &Client{api: api, bucket: "media", publicURL: "http://cdn.local"}

		err := c.Delete(ctx, "http://cdn.local/media/a.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to remove object")
		assert.Equal(t, "a.png", api.removedKey)
	})
}
