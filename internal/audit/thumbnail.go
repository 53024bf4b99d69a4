package audit

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// BatchSize bounds how many evidence images are fetched at once.
const BatchSize = 5

const thumbMaxWidth = 160

type thumbState int

const (
	thumbNone thumbState = iota
	thumbOK
	thumbFailed
)

type thumbnail struct {
	state thumbState
	jpeg  []byte
	w, h  int
}

func (t thumbnail) placeholder() string {
	if t.state == thumbFailed {
		return "Load Fail"
	}
	return "-"
}

// loadThumbnails fetches evidence for every row, BatchSize at a time. A row
// that fails to load is marked and does not fail the batch.
func (e *Exporter) loadThumbnails(ctx context.Context, rows []models.LoginLogEntry) ([]thumbnail, error) {
	thumbs := make([]thumbnail, len(rows))
	for start := 0; start < len(rows); start += BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+BatchSize, len(rows))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				thumbs[i] = e.loadThumbnail(ctx, rows[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return thumbs, ctx.Err()
}

func (e *Exporter) loadThumbnail(ctx context.Context, row models.LoginLogEntry) thumbnail {
	if row.CapturedImageURL == nil || *row.CapturedImageURL == "" {
		return thumbnail{state: thumbNone}
	}
	data, err := e.fetcher.Get(ctx, *row.CapturedImageURL)
	if err == nil {
		var t thumbnail
		if t, err = makeThumbnail(data); err == nil {
			return t
		}
	}
	if ctx.Err() == nil {
		observability.ExportThumbnailFailures.Inc()
		slog.Warn("load evidence thumbnail", "log_id", row.ID, "error", err)
	}
	return thumbnail{state: thumbFailed}
}

// makeThumbnail decodes an evidence image, shrinks it to thumbMaxWidth and
// re-encodes it as JPEG.
func makeThumbnail(data []byte) (thumbnail, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return thumbnail{}, fmt.Errorf("decode evidence: %w", err)
	}
	img = shrink(img, thumbMaxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return thumbnail{}, fmt.Errorf("encode thumbnail: %w", err)
	}
	b := img.Bounds()
	return thumbnail{state: thumbOK, jpeg: buf.Bytes(), w: b.Dx(), h: b.Dy()}, nil
}

func shrink(img image.Image, maxW int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxW || b.Dx() == 0 {
		return img
	}
	w := maxW
	h := max(1, b.Dy()*maxW/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			dst.Set(x, y, img.At(b.Min.X+x*b.Dx()/w, sy))
		}
	}
	return dst
}
