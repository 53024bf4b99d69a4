package evidence

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/fetch"
	"github.com/your-org/facegate/internal/models"
)

type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) PutObject(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return "", f.err
	}
	return "http://minio:9000/facegate/" + key, nil
}

type fakeLogs struct {
	rows []models.LoginLogEntry
	err  error
}

func (f *fakeLogs) InsertLoginLog(_ context.Context, e *models.LoginLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *e)
	return nil
}

type fakeEvents struct {
	events []models.Event
	err    error
}

func (f *fakeEvents) PublishEvent(_ context.Context, evt models.Event) error {
	f.events = append(f.events, evt)
	return f.err
}

var still = image.NewRGBA(image.Rect(0, 0, 16, 16))

func newRecorder(up *fakeUploader, logs *fakeLogs, ev *fakeEvents) *Recorder {
	r := NewRecorder(up, logs, ev)
	r.now = func() time.Time { return time.UnixMilli(1760000000123) }
	return r
}

func TestRecord_Uploaded(t *testing.T) {
	up, logs, ev := &fakeUploader{}, &fakeLogs{}, &fakeEvents{}
	user := uuid.New()

	entry, err := newRecorder(up, logs, ev).Record(context.Background(), user, models.LoginStatusSuccess, still)
	require.NoError(t, err)

	assert.Equal(t, []string{"login-evidence/" + user.String() + "/1760000000123.jpg"}, up.keys)
	require.Len(t, logs.rows, 1)
	assert.Equal(t, "http://minio:9000/facegate/"+up.keys[0], *logs.rows[0].CapturedImageURL)
	assert.Equal(t, models.LoginStatusSuccess, entry.Status)
	require.Len(t, ev.events, 1)
	assert.Equal(t, models.EventLoginAttempt, ev.events[0].Type)
}

func TestRecord_UploadFailsFallsBackInline(t *testing.T) {
	up := &fakeUploader{err: errors.New("bucket missing")}
	logs := &fakeLogs{}

	entry, err := newRecorder(up, logs, &fakeEvents{}).Record(context.Background(), uuid.New(), models.LoginStatusFailed, still)
	require.NoError(t, err)

	require.Len(t, logs.rows, 1)
	url := *logs.rows[0].CapturedImageURL
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
	data, err := fetch.DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
	assert.Equal(t, models.LoginStatusFailed, entry.Status)
}

func TestRecord_InsertFailure(t *testing.T) {
	logs := &fakeLogs{err: errors.New("connection refused")}
	ev := &fakeEvents{}

	_, err := newRecorder(&fakeUploader{}, logs, ev).Record(context.Background(), uuid.New(), models.LoginStatusFailed, still)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.NetworkFailure))
	assert.Empty(t, ev.events)
}

func TestRecord_PublishFailureIsNotFatal(t *testing.T) {
	logs := &fakeLogs{}
	_, err := newRecorder(&fakeUploader{}, logs, &fakeEvents{err: errors.New("nats down")}).
		Record(context.Background(), uuid.New(), models.LoginStatusSuccess, still)
	require.NoError(t, err)
	assert.Len(t, logs.rows, 1)
}

func TestRecord_CancelledDuringUpload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logs := &fakeLogs{}

	_, err := newRecorder(&fakeUploader{err: context.Canceled}, logs, &fakeEvents{}).
		Record(ctx, uuid.New(), models.LoginStatusSuccess, still)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, logs.rows)
}
