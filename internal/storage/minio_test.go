package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMinio struct {
	bucketExists    bool
	bucketExistsErr error
	madeBucket      bool
	makeBucketErr   error

	putKey         string
	putData        []byte
	putContentType string
	putErr         error

	objects map[string][]byte
	getErr  error
}

func (f *fakeMinio) BucketExists(context.Context, string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}

func (f *fakeMinio) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.madeBucket = true
	return f.makeBucketErr
}

func (f *fakeMinio) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, _ := io.ReadAll(r)
	f.putKey, f.putData, f.putContentType = key, data, opts.ContentType
	return minio.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeMinio) GetObject(_ context.Context, _, key string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	api := &fakeMinio{bucketExists: true}
	require.NoError(t, newMinIOStore(api, "b", "http://x").EnsureBucket(ctx))
	assert.False(t, api.madeBucket)

	api = &fakeMinio{}
	require.NoError(t, newMinIOStore(api, "b", "http://x").EnsureBucket(ctx))
	assert.True(t, api.madeBucket)

	api = &fakeMinio{makeBucketErr: errors.New("denied")}
	err := newMinIOStore(api, "b", "http://x").EnsureBucket(ctx)
	assert.ErrorContains(t, err, "create bucket")

	api = &fakeMinio{bucketExistsErr: errors.New("down")}
	assert.ErrorContains(t, newMinIOStore(api, "b", "http://x").EnsureBucket(ctx), "check bucket")
}

func TestPutObject_ReturnsPublicURL(t *testing.T) {
	api := &fakeMinio{}
	s := newMinIOStore(api, "facegate", "https://cdn.example.com/")

	u, err := s.PutObject(context.Background(), "login-evidence/u/1.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/facegate/login-evidence/u/1.jpg", u)
	assert.Equal(t, "image/jpeg", api.putContentType)
	assert.Equal(t, []byte("jpeg"), api.putData)
}

func TestPutObject_Error(t *testing.T) {
	s := newMinIOStore(&fakeMinio{putErr: errors.New("quota")}, "b", "http://x")
	u, err := s.PutObject(context.Background(), "k", nil, "image/jpeg")
	assert.Empty(t, u)
	assert.ErrorContains(t, err, "put object k")
}

func TestGetObject(t *testing.T) {
	s := newMinIOStore(&fakeMinio{objects: map[string][]byte{"a/b.jpg": []byte("img")}}, "b", "http://x")

	data, err := s.GetObject(context.Background(), "a/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)

	_, err = s.GetObject(context.Background(), "missing")
	assert.ErrorContains(t, err, "get object missing")
}

func TestKeyFromURL(t *testing.T) {
	s := newMinIOStore(&fakeMinio{}, "facegate", "http://minio:9000")

	key, ok := s.KeyFromURL("http://minio:9000/facegate/admins/photo%201.jpg")
	assert.True(t, ok)
	assert.Equal(t, "admins/photo 1.jpg", key)

	_, ok = s.KeyFromURL("https://elsewhere.example/facegate/admins/a.jpg")
	assert.False(t, ok)

	_, ok = s.KeyFromURL("http://minio:9000/facegate/")
	assert.False(t, ok)

	assert.Equal(t, "http://minio:9000/facegate/k", s.PublicURL("/k"))
}
