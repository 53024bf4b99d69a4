package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/apperr"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

type fakeSource struct {
	calls    []string
	startErr error
	*PushSource
}

func newFakeSource() *fakeSource {
	return &fakeSource{PushSource: NewPushSource()}
}

func (f *fakeSource) Start(ctx context.Context, facing Facing) error {
	f.calls = append(f.calls, "start:"+string(facing))
	if f.startErr != nil {
		return f.startErr
	}
	return f.PushSource.Start(ctx, facing)
}

func (f *fakeSource) Stop() error {
	f.calls = append(f.calls, "stop")
	return f.PushSource.Stop()
}

func TestOpen_PermissionDenied(t *testing.T) {
	src := newFakeSource()
	src.startErr = os.ErrPermission
	cam := New(src)

	err := cam.Open(context.Background(), FacingUser)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.CameraUnavailable))
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, apperr.MessageOf(err), "Camera unavailable:")
	assert.Equal(t, 0, cam.ActiveTracks())
}

func TestOpen_InvalidFacing(t *testing.T) {
	cam := New(NewPushSource())
	assert.Error(t, cam.Open(context.Background(), Facing("sideways")))
}

func TestWaitReady_OnFirstValidFrame(t *testing.T) {
	src := NewPushSource()
	cam := New(src)
	require.NoError(t, cam.Open(context.Background(), FacingUser))

	_, err := cam.Snapshot()
	assert.ErrorIs(t, err, ErrNotReady)

	assert.Error(t, src.Push([]byte("garbage")))

	frame := jpegBytes(t, 32, 24)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = src.Push(frame)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cam.WaitReady(ctx))

	f, err := cam.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 32, f.Width)
	assert.Equal(t, 24, f.Height)
	assert.Equal(t, FacingUser, f.Facing)
}

func TestWaitReady_Timeout(t *testing.T) {
	cam := New(NewPushSource())
	require.NoError(t, cam.Open(context.Background(), FacingUser))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := cam.WaitReady(ctx)
	assert.True(t, errors.Is(err, apperr.CameraUnavailable))
}

func TestSwitch_StopsBeforeStart(t *testing.T) {
	src := newFakeSource()
	cam := New(src)
	require.NoError(t, cam.Open(context.Background(), FacingUser))

	facing, err := cam.Switch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FacingEnvironment, facing)
	assert.Equal(t, []string{"start:user", "stop", "start:environment"}, src.calls)
	assert.Equal(t, 1, cam.ActiveTracks())

	facing, err = cam.Switch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FacingUser, facing)
}

func TestSwitch_FailedStartLeavesNoTracks(t *testing.T) {
	src := newFakeSource()
	cam := New(src)
	require.NoError(t, cam.Open(context.Background(), FacingUser))

	src.startErr = errors.New("no back camera")
	_, err := cam.Switch(context.Background())
	assert.True(t, errors.Is(err, apperr.CameraUnavailable))
	assert.Equal(t, 0, cam.ActiveTracks())
	assert.Equal(t, FacingUser, cam.Facing())
}

func TestClose_ReleasesTracksAndIsIdempotent(t *testing.T) {
	src := NewPushSource()
	cam := New(src)
	require.NoError(t, cam.Open(context.Background(), FacingUser))
	require.NoError(t, src.Push(jpegBytes(t, 8, 8)))
	assert.True(t, cam.Live())

	require.NoError(t, cam.Close())
	require.NoError(t, cam.Close())
	assert.Equal(t, 0, cam.ActiveTracks())

	_, err := cam.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, src.Push(jpegBytes(t, 8, 8)), ErrStopped)
	assert.ErrorIs(t, cam.Open(context.Background(), FacingUser), ErrClosed)
}

func TestSnapshot_AfterStop(t *testing.T) {
	src := NewPushSource()
	cam := New(src)
	require.NoError(t, cam.Open(context.Background(), FacingUser))
	require.NoError(t, src.Push(jpegBytes(t, 8, 8)))
	require.NoError(t, cam.Stop())

	_, err := cam.Snapshot()
	assert.ErrorIs(t, err, ErrStopped)
}

func TestReadJPEGFrames_SplitsOnMarkers(t *testing.T) {
	a := jpegBytes(t, 4, 4)
	b := jpegBytes(t, 6, 6)
	stream := append([]byte{0x00, 0x13}, a...)
	stream = append(stream, 0xFF)
	stream = append(stream, b...)

	var frames [][]byte
	err := readJPEGFrames(bytes.NewReader(stream), func(f []byte) {
		frames = append(frames, f)
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
}

func TestReadJPEGFrames_EmptyStream(t *testing.T) {
	err := readJPEGFrames(bytes.NewReader(nil), func([]byte) {})
	assert.Error(t, err)
}

func TestDeviceSource_MissingDevice(t *testing.T) {
	src := NewDeviceSource(DeviceConfig{
		FFmpegPath: "ffmpeg",
		Devices:    map[Facing]string{FacingUser: filepath.Join(t.TempDir(), "video9")},
	})
	err := src.Start(context.Background(), FacingUser)
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = src.Start(context.Background(), FacingEnvironment)
	assert.Error(t, err)
	assert.Equal(t, 0, src.ActiveTracks())
}

func TestDeviceSource_ReadsFramesFromProcess(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	dir := t.TempDir()
	device := filepath.Join(dir, "video0")
	require.NoError(t, os.WriteFile(device, nil, 0o600))
	framesFile := filepath.Join(dir, "frames.mjpeg")
	require.NoError(t, os.WriteFile(framesFile, jpegBytes(t, 16, 12), 0o600))

	src := NewDeviceSource(DeviceConfig{Devices: map[Facing]string{FacingUser: device}})
	var gotArgs []string
	src.command = func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		gotArgs = args
		return exec.CommandContext(ctx, "cat", framesFile)
	}

	require.NoError(t, src.Start(context.Background(), FacingUser))
	assert.Contains(t, gotArgs, device)

	select {
	case <-src.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("device never became ready")
	}
	f, err := src.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 16, f.Width)
	require.NoError(t, src.Stop())
	assert.Equal(t, 0, src.ActiveTracks())
}

// exitingSource can end its capture without Stop.
type exitingSource struct {
	*fakeSource
	done chan struct{}
}

func (e *exitingSource) Start(ctx context.Context, facing Facing) error {
	e.done = make(chan struct{})
	return e.fakeSource.Start(ctx, facing)
}

func (e *exitingSource) Stop() error {
	err := e.fakeSource.Stop()
	if running(e.done) {
		close(e.done)
	}
	return err
}

func (e *exitingSource) Done() <-chan struct{} { return e.done }

func (e *exitingSource) exit() {
	_ = e.PushSource.Stop()
	close(e.done)
}

func TestLost_ClosedWhenCaptureExits(t *testing.T) {
	src := &exitingSource{fakeSource: newFakeSource()}
	cam := New(src)
	require.NoError(t, cam.Open(context.Background(), FacingUser))
	require.NoError(t, src.Push(jpegBytes(t, 8, 8)))
	lost := cam.Lost()

	src.exit()
	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("capture exit was not reported")
	}
	assert.False(t, cam.Live())
	_, err := cam.Snapshot()
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLost_NotClosedOnDeliberateStop(t *testing.T) {
	src := &exitingSource{fakeSource: newFakeSource()}
	cam := New(src)
	require.NoError(t, cam.Open(context.Background(), FacingUser))
	lost := cam.Lost()

	_, err := cam.Switch(context.Background())
	require.NoError(t, err)
	require.NoError(t, cam.Stop())
	require.NoError(t, cam.Close())

	select {
	case <-lost:
		t.Fatal("deliberate stop reported as lost capture")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReadJPEGBody_FillBytesBeforeEOI(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xFF, 0xD9}
	b := jpegBytes(t, 4, 4)
	stream := append(append([]byte{}, a...), b...)

	var frames [][]byte
	err := readJPEGFrames(bytes.NewReader(stream), func(f []byte) {
		frames = append(frames, f)
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
}

func TestDeviceSource_ProcessExitReportedAsLost(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	dir := t.TempDir()
	device := filepath.Join(dir, "video0")
	require.NoError(t, os.WriteFile(device, nil, 0o600))
	framesFile := filepath.Join(dir, "frames.mjpeg")
	require.NoError(t, os.WriteFile(framesFile, jpegBytes(t, 16, 12), 0o600))

	src := NewDeviceSource(DeviceConfig{Devices: map[Facing]string{FacingUser: device}})
	src.command = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "cat", framesFile)
	}
	cam := New(src)
	defer cam.Close()

	require.NoError(t, cam.Open(context.Background(), FacingUser))
	select {
	case <-cam.Lost():
	case <-time.After(5 * time.Second):
		t.Fatal("exited ffmpeg was not reported")
	}
	assert.Equal(t, 0, cam.ActiveTracks())
}

func TestDeviceSource_OutlivesStartContext(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	device := filepath.Join(t.TempDir(), "video0")
	require.NoError(t, os.WriteFile(device, nil, 0o600))

	src := NewDeviceSource(DeviceConfig{Devices: map[Facing]string{FacingUser: device}})
	src.command = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sleep", "30")
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx, FacingUser))
	cancel()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, src.ActiveTracks())

	require.NoError(t, src.Stop())
	assert.Equal(t, 0, src.ActiveTracks())
}
