package facedb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Metric measures the distance between column i of a and column j of b.
// Implementations must be non-negative with d(x,x)=0; symmetry is not
// required, but an asymmetric metric should say so in its documentation
// since nearest-neighbor results then depend on argument order.
type Metric interface {
	Name() string
	Distance(a mat.Matrix, i int, b mat.Matrix, j int) float64
}

// MetricByName returns the built-in metric with the given name.
func MetricByName(name string) (Metric, error) {
	switch name {
	case "euclidean", "":
		return Euclidean{}, nil
	case "cosine":
		return Cosine{}, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q (available: euclidean, cosine)", name)
	}
}

// Euclidean is the L2 distance between two columns.
type Euclidean struct{}

func (Euclidean) Name() string { return "euclidean" }

func (Euclidean) Distance(a mat.Matrix, i int, b mat.Matrix, j int) float64 {
	rows, _ := a.Dims()
	var sum float64
	for r := range rows {
		d := a.At(r, i) - b.At(r, j)
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Cosine is the cosine distance between two columns: 1 - cosine similarity,
// ranging from 0 (identical direction) to 2 (opposite). Zero vectors get
// the maximum distance rather than NaN.
type Cosine struct{}

func (Cosine) Name() string { return "cosine" }

func (Cosine) Distance(a mat.Matrix, i int, b mat.Matrix, j int) float64 {
	rows, _ := a.Dims()

	var dotProduct, normA, normB float64
	for r := range rows {
		av := a.At(r, i)
		bv := b.At(r, j)
		dotProduct += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}
