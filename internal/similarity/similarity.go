package similarity

import (
	"errors"
	"math"
)

// MaxDistance is returned by EuclideanDistance when the vectors cannot be compared.
const MaxDistance = math.MaxFloat64

// ErrLengthMismatch is returned when two embeddings have different lengths.
var ErrLengthMismatch = errors.New("embedding length mismatch")

// CosineSimilarity returns the absolute value of the normalized dot product of a and b.
// Returns 0 when either vector has zero magnitude.
// For face embeddings, values > 0.8 typically indicate the same person.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	similarity := math.Abs(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
	// Clamp floating point overshoot
	if similarity > 1 {
		similarity = 1
	}

	return similarity, nil
}

// EuclideanDistance returns the L2 distance between a and b, or MaxDistance
// when the lengths differ.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return MaxDistance
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}

	return math.Sqrt(sum)
}

// Truncate cuts both vectors to the shorter length. It is a degraded fallback
// for mixed model versions; callers must log that they used it.
func Truncate(a, b []float32) ([]float32, []float32) {
	n := min(len(a), len(b))
	return a[:n], b[:n]
}

// Normalize returns a unit-length copy of v. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}

	if norm == 0 {
		return v
	}

	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out
}
