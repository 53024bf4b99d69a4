package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	embedInputSize = 112
	DescriptorSize = 512
)

// embedder wraps the ArcFace w600k_r50 session.
type embedder struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newEmbedder(modelPath string, opts *ort.SessionOptions) (*embedder, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embedInputSize, embedInputSize))
	if err != nil {
		return nil, fmt.Errorf("create embedder input: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, DescriptorSize))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create embedder output: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, []string{"683"},
		[]ort.Value{input}, []ort.Value{output}, opts)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}
	return &embedder{session: session, input: input, output: output}, nil
}

// embed returns the L2-normalized descriptor of a 112x112 CHW face crop.
func (e *embedder) embed(chw []float32) ([]float32, error) {
	copy(e.input.GetData(), chw)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedder: %w", err)
	}
	desc := make([]float32, DescriptorSize)
	copy(desc, e.output.GetData())
	l2Normalize(desc)
	return desc, nil
}

func (e *embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	e.input.Destroy()
	e.output.Destroy()
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
