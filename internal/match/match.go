// Package match decides whether a live face descriptor belongs to the same
// person as a stored reference descriptor.
package match

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/vision"
)

// Threshold is the largest Euclidean distance still considered a match.
// The comparison is strict: a distance equal to Threshold is a mismatch.
const Threshold = 0.6

var ErrDimension = errors.New("descriptor dimensions differ")

// Result is the outcome of one comparison.
type Result struct {
	Distance float64 `json:"distance"`
	Matched  bool    `json:"matched"`
	Score    int     `json:"score"` // round((1-distance)*100), clamped to [0,100]
}

// Distance returns the Euclidean distance between two descriptors.
func Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimension, len(a), len(b))
	}
	return floats.Distance(toFloat64(a), toFloat64(b), 2), nil
}

// Classify applies the threshold to a precomputed distance.
func Classify(distance float64) Result {
	return Result{
		Distance: distance,
		Matched:  distance < Threshold,
		Score:    Score(distance),
	}
}

// Score converts a distance into a percentage for display.
func Score(distance float64) int {
	s := int(math.Round((1 - distance) * 100))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Decide compares a candidate descriptor against a reference.
func Decide(candidate, reference []float32) (Result, error) {
	d, err := Distance(candidate, reference)
	if err != nil {
		return Result{}, err
	}
	return Classify(d), nil
}

// ReferenceSource yields the encoded reference photo. It is only called
// once the live frame is known to contain a face.
type ReferenceSource func(ctx context.Context) ([]byte, error)

// Compare describes the live frame, then the reference, and decides. A live
// frame without a face yields NoFaceDetected and a reference without one
// yields InvalidReferenceImage; neither reaches the distance computation.
func Compare(ctx context.Context, engine vision.Engine, live []byte, reference ReferenceSource) (Result, error) {
	liveFace, err := engine.Describe(ctx, live)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) || errors.Is(err, vision.ErrDecode) {
			return Result{}, apperr.New(apperr.KindNoFaceDetected, "", err)
		}
		return Result{}, fmt.Errorf("describe live frame: %w", err)
	}

	refData, err := reference(ctx)
	if err != nil {
		return Result{}, err
	}
	refFace, err := engine.Describe(ctx, refData)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) || errors.Is(err, vision.ErrDecode) {
			return Result{}, apperr.New(apperr.KindInvalidReferenceImage, "", err)
		}
		return Result{}, fmt.Errorf("describe reference photo: %w", err)
	}

	return Decide(liveFace.Descriptor, refFace.Descriptor)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
