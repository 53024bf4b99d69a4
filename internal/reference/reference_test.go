package reference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/retry"
)

type fakeHTTP struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeHTTP) Get(context.Context, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeStore struct {
	prefix  string
	objects map[string][]byte
	fails   int
	calls   int
}

func (f *fakeStore) GetObject(_ context.Context, key string) ([]byte, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("minio unavailable")
	}
	d, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return d, nil
}

func (f *fakeStore) KeyFromURL(raw string) (string, bool) {
	if len(raw) > len(f.prefix) && raw[:len(f.prefix)] == f.prefix {
		return raw[len(f.prefix):], true
	}
	return "", false
}

var policy = retry.Policy{Attempts: 3, Backoff: time.Millisecond}

const photoURL = "http://minio:9000/facegate/admins/a.jpg"

func TestLoad_DirectFetch(t *testing.T) {
	h := &fakeHTTP{data: []byte("photo")}
	s := &fakeStore{prefix: "http://minio:9000/facegate/"}

	data, err := NewLoader(h, s, policy).Load(context.Background(), photoURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("photo"), data)
	assert.Zero(t, s.calls)
}

func TestLoad_FallsBackToStorage(t *testing.T) {
	h := &fakeHTTP{err: errors.New("cors blocked")}
	s := &fakeStore{
		prefix:  "http://minio:9000/facegate/",
		objects: map[string][]byte{"admins/a.jpg": []byte("from-store")},
		fails:   1,
	}

	data, err := NewLoader(h, s, policy).Load(context.Background(), photoURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-store"), data)
	assert.Equal(t, 2, s.calls)
}

func TestLoad_ForeignURLFailure(t *testing.T) {
	h := &fakeHTTP{err: errors.New("dial tcp: refused")}
	s := &fakeStore{prefix: "http://minio:9000/facegate/"}

	_, err := NewLoader(h, s, policy).Load(context.Background(), "https://elsewhere.example/a.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.NetworkFailure))
	assert.Zero(t, s.calls)
}

func TestLoad_BothPathsFail(t *testing.T) {
	h := &fakeHTTP{err: errors.New("timeout")}
	s := &fakeStore{prefix: "http://minio:9000/facegate/", fails: 10}

	_, err := NewLoader(h, s, policy).Load(context.Background(), photoURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.NetworkFailure))
	assert.Equal(t, 3, s.calls)
	assert.Contains(t, err.Error(), "timeout")
}

func TestLoad_EmptyURL(t *testing.T) {
	_, err := NewLoader(&fakeHTTP{}, &fakeStore{}, policy).Load(context.Background(), "")
	assert.True(t, errors.Is(err, apperr.InvalidReferenceImage))
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := &fakeHTTP{err: context.Canceled}

	_, err := NewLoader(h, &fakeStore{prefix: "http://minio:9000/facegate/"}, policy).Load(ctx, photoURL)
	assert.ErrorIs(t, err, context.Canceled)
}
