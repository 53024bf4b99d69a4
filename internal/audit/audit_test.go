package audit

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/fetch"
	"github.com/your-org/facegate/internal/models"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fakeFetcher struct {
	images   map[string][]byte
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	if fetch.IsDataURL(url) {
		return fetch.DecodeDataURL(url)
	}
	data, ok := f.images[url]
	if !ok {
		return nil, errors.New("connection reset")
	}
	return data, nil
}

type fakeUploader struct {
	mu   sync.Mutex
	key  string
	ct   string
	data []byte
	err  error
}

func (u *fakeUploader) PutObject(_ context.Context, key string, data []byte, ct string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.key, u.ct, u.data = key, ct, data
	return "http://minio:9000/facegate/" + key, nil
}

func ptr(s string) *string { return &s }

func logRows(n int, url func(i int) *string) []models.LoginLogEntry {
	rows := make([]models.LoginLogEntry, n)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = models.LoginLogEntry{
			ID:               uuid.New(),
			UserID:           uuid.New(),
			Status:           models.LoginStatusFailed,
			CapturedImageURL: url(i),
			LoginTime:        base.Add(time.Duration(i) * time.Minute),
		}
	}
	rows[0].Status = models.LoginStatusSuccess
	logout := base.Add(time.Hour)
	rows[0].LogoutTime = &logout
	return rows
}

func TestObjectKey(t *testing.T) {
	id := uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	at := time.Date(2026, 10, 15, 8, 4, 5, 0, time.UTC)
	assert.Equal(t, "exports/login-logs-20261015-080405-1b4e28ba.pdf", ObjectKey(id, at))
}

func TestNewJob(t *testing.T) {
	uid := uuid.New()
	job := NewJob(&uid, nil, nil, func(key string) string { return "https://cdn/" + key })

	assert.Regexp(t, regexp.MustCompile(`^exports/login-logs-\d{8}-\d{6}-[0-9a-f]{8}\.pdf$`), job.ObjectKey)
	assert.Equal(t, "https://cdn/"+job.ObjectKey, job.PublicURL)
	assert.Equal(t, &uid, job.Filter().UserID)
}

func TestExport_ToleratesFailedThumbnail(t *testing.T) {
	img := jpegBytes(t, 320, 240)
	fetcher := &fakeFetcher{images: map[string][]byte{"http://minio/ok.jpg": img}}
	uploader := &fakeUploader{}
	exp := NewExporter(fetcher, uploader, Config{OwnerPassword: "owner", UserPassword: "user"})

	rows := logRows(12, func(i int) *string {
		switch i {
		case 3:
			return ptr("http://minio/missing.jpg")
		case 7:
			return nil
		case 9:
			return ptr(fetch.EncodeDataURL("image/jpeg", img))
		}
		return ptr("http://minio/ok.jpg")
	})
	job := NewJob(nil, nil, nil, func(key string) string { return "http://minio:9000/facegate/" + key })

	url, err := exp.Export(context.Background(), job, rows)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/facegate/"+job.ObjectKey, url)
	assert.Equal(t, job.ObjectKey, uploader.key)
	assert.Equal(t, "application/pdf", uploader.ct)
	assert.True(t, bytes.HasPrefix(uploader.data, []byte("%PDF")))
	assert.Contains(t, string(uploader.data), "/Encrypt")
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(BatchSize))
}

func TestExport_PlaceholdersPerRow(t *testing.T) {
	img := jpegBytes(t, 64, 48)
	fetcher := &fakeFetcher{images: map[string][]byte{"http://minio/ok.jpg": img}}
	uploader := &fakeUploader{}
	exp := NewExporter(fetcher, uploader, Config{})
	exp.inspect = true

	rows := logRows(6, func(i int) *string {
		switch i {
		case 2:
			return ptr("http://minio/missing.jpg")
		case 4:
			return nil
		}
		return ptr("http://minio/ok.jpg")
	})
	job := NewJob(nil, nil, nil, func(key string) string { return "http://minio:9000/facegate/" + key })

	_, err := exp.Export(context.Background(), job, rows)
	require.NoError(t, err)
	doc := string(uploader.data)
	assert.NotContains(t, doc, "/Encrypt")
	assert.Equal(t, 1, strings.Count(doc, "(Load Fail)"))
}

func TestLoadThumbnails_States(t *testing.T) {
	img := jpegBytes(t, 640, 480)
	fetcher := &fakeFetcher{images: map[string][]byte{
		"ok":      img,
		"garbage": []byte("not an image"),
	}}
	exp := NewExporter(fetcher, &fakeUploader{}, Config{})
	rows := []models.LoginLogEntry{
		{CapturedImageURL: ptr("ok")},
		{CapturedImageURL: ptr("garbage")},
		{CapturedImageURL: ptr("unreachable")},
		{CapturedImageURL: nil},
		{CapturedImageURL: ptr("")},
	}

	thumbs, err := exp.loadThumbnails(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, thumbOK, thumbs[0].state)
	assert.Equal(t, thumbMaxWidth, thumbs[0].w)
	assert.Equal(t, 120, thumbs[0].h)
	assert.Equal(t, "Load Fail", thumbs[1].placeholder())
	assert.Equal(t, "Load Fail", thumbs[2].placeholder())
	assert.Equal(t, "-", thumbs[3].placeholder())
	assert.Equal(t, "-", thumbs[4].placeholder())
}

func TestLoadThumbnails_Canceled(t *testing.T) {
	exp := NewExporter(&fakeFetcher{}, &fakeUploader{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exp.loadThumbnails(ctx, logRows(3, func(int) *string { return ptr("x") }))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExport_UploadFailure(t *testing.T) {
	exp := NewExporter(&fakeFetcher{}, &fakeUploader{err: errors.New("bucket gone")}, Config{})
	job := NewJob(nil, nil, nil, func(key string) string { return key })

	_, err := exp.Export(context.Background(), job, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.UploadFailure))
}

func TestExport_WithLogo(t *testing.T) {
	logo := filepath.Join(t.TempDir(), "logo.jpg")
	require.NoError(t, os.WriteFile(logo, jpegBytes(t, 64, 64), 0o600))
	uploader := &fakeUploader{}
	exp := NewExporter(&fakeFetcher{}, uploader, Config{LogoPath: logo, Title: "Quarterly audit"})

	job := NewJob(nil, nil, nil, func(key string) string { return key })
	_, err := exp.Export(context.Background(), job, logRows(2, func(int) *string { return nil }))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(uploader.data, []byte("%PDF")))
}

func TestExport_BrokenLogoSkipped(t *testing.T) {
	logo := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(logo, []byte("nope"), 0o600))
	uploader := &fakeUploader{}
	exp := NewExporter(&fakeFetcher{}, uploader, Config{LogoPath: logo})

	job := NewJob(nil, nil, nil, func(key string) string { return key })
	_, err := exp.Export(context.Background(), job, logRows(1, func(int) *string { return nil }))
	require.NoError(t, err)
}

func TestShrink_KeepsAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 400))
	out := shrink(img, 160)
	assert.Equal(t, 160, out.Bounds().Dx())
	assert.Equal(t, 80, out.Bounds().Dy())

	small := image.NewRGBA(image.Rect(0, 0, 100, 100))
	assert.Same(t, small, shrink(small, 160))
}
