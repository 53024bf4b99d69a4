package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

const maxFrameBytes = 10 << 20

// DeviceConfig describes how ffmpeg reaches the local cameras.
type DeviceConfig struct {
	FFmpegPath  string
	InputFormat string // e.g. v4l2, avfoundation
	Devices     map[Facing]string
	Width       int
	FPS         int
}

// DeviceSource captures MJPEG frames from a local device through ffmpeg.
type DeviceSource struct {
	cfg DeviceConfig

	// command builds the capture process; replaced in tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd

	mu     sync.Mutex
	latch  *latch
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDeviceSource(cfg DeviceConfig) *DeviceSource {
	return &DeviceSource{cfg: cfg, command: exec.CommandContext, latch: newLatch()}
}

func (d *DeviceSource) args(device string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", d.cfg.InputFormat,
		"-i", device,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", d.cfg.FPS, d.cfg.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	}
}

// Start spawns ffmpeg for the device mapped to facing. ctx carries values
// only; the capture runs until Stop or until the process exits.
func (d *DeviceSource) Start(ctx context.Context, facing Facing) error {
	device, ok := d.cfg.Devices[facing]
	if !ok || device == "" {
		return fmt.Errorf("no %s camera configured", facing)
	}
	if _, err := os.Stat(device); err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		if running(d.done) {
			return errors.New("capture already running")
		}
		d.cancel()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := d.command(runCtx, d.cfg.FFmpegPath, d.args(device)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	d.latch.reset()
	d.cancel = cancel
	done := make(chan struct{})
	d.done = done

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			slog.Warn("ffmpeg stderr", "device", device, "output", sc.Text())
		}
	}()

	go func() {
		defer close(done)
		err := readJPEGFrames(stdout, func(frame []byte) {
			if err := d.latch.offer(frame); err != nil {
				slog.Debug("drop camera frame", "device", device, "error", err)
			}
		})
		if err != nil && runCtx.Err() == nil {
			slog.Warn("camera capture ended", "device", device, "error", err)
		}
		_ = cmd.Wait()
	}()

	return nil
}

func (d *DeviceSource) Ready() <-chan struct{} {
	return d.latch.readyCh()
}

func (d *DeviceSource) Snapshot() (Frame, error) {
	return d.latch.snapshot()
}

// Stop kills ffmpeg and waits for the reader to drain.
func (d *DeviceSource) Stop() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Done is closed when the current capture process exits, whether through
// Stop or on its own. It is nil before the first Start.
func (d *DeviceSource) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *DeviceSource) ActiveTracks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil || !running(d.done) {
		return 0
	}
	return 1
}

func running(done <-chan struct{}) bool {
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// readJPEGFrames splits a stream of concatenated JPEG images on their SOI
// and EOI markers. It returns nil when the stream ends after at least one
// frame.
func readJPEGFrames(r io.Reader, onFrame func([]byte)) error {
	br := bufio.NewReaderSize(r, 512*1024)
	frames := 0
	for {
		if err := seekJPEGStart(br); err != nil {
			if errors.Is(err, io.EOF) {
				if frames > 0 {
					return nil
				}
				return errors.New("no frames received from ffmpeg")
			}
			return err
		}
		frame, err := readJPEGBody(br)
		if err != nil {
			if errors.Is(err, io.EOF) && frames > 0 {
				return nil
			}
			return err
		}
		frames++
		onFrame(frame)
	}
}

func seekJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
		if b == 0xFF {
			_ = r.UnreadByte()
		}
	}
}

func readJPEGBody(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)
		if len(data) > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame too large: %s bytes", strconv.Itoa(len(data)))
		}
		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if next == 0xFF {
				// fill byte; the marker code may still follow
				_ = r.UnreadByte()
				continue
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}
	}
}
