package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Box is a detected face in source-image pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float32
}

func (b Box) Width() float32  { return b.X2 - b.X1 }
func (b Box) Height() float32 { return b.Y2 - b.Y1 }

func (b Box) area() float32 {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

type candidate struct {
	box       Box
	score     float32
	landmarks [5][2]float32
}

// detector wraps the RetinaFace det_10g session.
type detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	outputs   []*ort.Tensor[float32]
	threshold float32
	size      int
}

const (
	detInputSize    = 640
	anchorsPerCell  = 2
	nmsIoUThreshold = 0.4
)

var detStrides = [3]int{8, 16, 32}

// det_10g output heads, grouped scores/boxes/landmarks per stride.
var detOutputs = []struct {
	name  string
	width int64
}{
	{"448", 1}, {"471", 1}, {"494", 1},
	{"451", 4}, {"474", 4}, {"497", 4},
	{"454", 10}, {"477", 10}, {"500", 10},
}

func newDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*detector, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create detector input: %w", err)
	}

	d := &detector{input: input, threshold: threshold, size: detInputSize}
	names := make([]string, len(detOutputs))
	values := make([]ort.Value, len(detOutputs))
	for i, o := range detOutputs {
		rows := int64(cellCount(detInputSize, detStrides[i%3]))
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(rows, o.width))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create detector output %s: %w", o.name, err)
		}
		names[i] = o.name
		values[i] = t
		d.outputs = append(d.outputs, t)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{input}, values, opts)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

func cellCount(size, stride int) int {
	n := size / stride
	return n * n * anchorsPerCell
}

// detect runs the model on a CHW tensor and returns candidates sorted by
// score, highest first, after suppression.
func (d *detector) detect(chw []float32, srcW, srcH int) ([]candidate, error) {
	copy(d.input.GetData(), chw)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detector: %w", err)
	}

	var heads [9][]float32
	for i, t := range d.outputs {
		heads[i] = t.GetData()
	}
	cands := decodeHeads(heads, d.size, srcW, srcH, d.threshold)
	return suppress(cands, nmsIoUThreshold), nil
}

func (d *detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range d.outputs {
		t.Destroy()
	}
}

// decodeHeads turns the anchor-relative model outputs into boxes scaled to
// the source image. Box and landmark offsets are in units of the stride.
func decodeHeads(heads [9][]float32, size, srcW, srcH int, threshold float32) []candidate {
	sx := float32(srcW) / float32(size)
	sy := float32(srcH) / float32(size)

	var out []candidate
	for si, stride := range detStrides {
		scores, boxes, marks := heads[si], heads[si+3], heads[si+6]
		cells := size / stride
		st := float32(stride)

		for i := range scores {
			if scores[i] < threshold {
				continue
			}
			cell := i / anchorsPerCell
			ax := float32(cell%cells) * st
			ay := float32(cell/cells) * st

			c := candidate{
				score: scores[i],
				box: Box{
					X1: clamp((ax-boxes[i*4]*st)*sx, 0, float32(srcW)),
					Y1: clamp((ay-boxes[i*4+1]*st)*sy, 0, float32(srcH)),
					X2: clamp((ax+boxes[i*4+2]*st)*sx, 0, float32(srcW)),
					Y2: clamp((ay+boxes[i*4+3]*st)*sy, 0, float32(srcH)),
				},
			}
			for k := 0; k < 5; k++ {
				c.landmarks[k][0] = (ax + marks[i*10+k*2]*st) * sx
				c.landmarks[k][1] = (ay + marks[i*10+k*2+1]*st) * sy
			}
			out = append(out, c)
		}
	}
	return out
}

// suppress is greedy non-maximum suppression. The result is ordered by
// descending score.
func suppress(cands []candidate, iouThreshold float32) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	kept := cands[:0:0]
	for _, c := range cands {
		overlaps := false
		for _, k := range kept {
			if iou(c.box, k.box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}

func iou(a, b Box) float32 {
	inter := Box{
		X1: max(a.X1, b.X1), Y1: max(a.Y1, b.Y1),
		X2: min(a.X2, b.X2), Y2: min(a.Y2, b.Y2),
	}.area()
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
