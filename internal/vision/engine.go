// Package vision turns an image into a face descriptor using RetinaFace for
// detection and ArcFace for embedding.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/facegate/internal/observability"
)

var (
	ErrNoFace = errors.New("no face detected")
	ErrDecode = errors.New("image could not be decoded")
)

// Face is the descriptor of the most confident face in an image. It is
// never persisted.
type Face struct {
	Descriptor []float32
	Box        Box
	Landmarks  [5][2]float32
	Confidence float32
}

// Engine describes the most confident face in an encoded image.
type Engine interface {
	Describe(ctx context.Context, image []byte) (*Face, error)
}

// ONNXEngine runs both models through ONNX Runtime. The runtime environment
// must be initialized by the caller.
type ONNXEngine struct {
	mu  sync.Mutex
	det *detector
	emb *embedder
}

// NewONNXEngine loads det_10g.onnx and w600k_r50.onnx from modelsDir.
func NewONNXEngine(modelsDir string, threshold float64) (*ONNXEngine, error) {
	detPath := filepath.Join(modelsDir, "det_10g.onnx")
	embPath := filepath.Join(modelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := newDetector(detPath, float32(threshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := newEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXEngine{det: det, emb: emb}, nil
}

func (e *ONNXEngine) Describe(ctx context.Context, data []byte) (*Face, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()

	start := time.Now()
	detIn := toCHW(img, detInputSize, detNorm)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ORT sessions share fixed input/output tensors.
	e.mu.Lock()
	defer e.mu.Unlock()

	start = time.Now()
	cands, err := e.det.detect(detIn, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if len(cands) == 0 {
		return nil, ErrNoFace
	}
	best := cands[0]

	crop := cropFace(img, best.box)
	if crop == nil {
		return nil, ErrNoFace
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	desc, err := e.emb.embed(toCHW(crop, embedInputSize, embedNorm))
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	return &Face{
		Descriptor: desc,
		Box:        best.box,
		Landmarks:  best.landmarks,
		Confidence: best.score,
	}, nil
}

// Close releases both sessions.
func (e *ONNXEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.det.Close()
	e.emb.Close()
}
