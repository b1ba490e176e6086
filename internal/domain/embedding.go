package domain

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embedding is a face embedding produced by an external model (128, 192, 512... floats).
type Embedding []float32

// Validate rejects embeddings that must never reach the matching math:
// empty, NaN/Inf components, all-zero or all-identical vectors.
func (e Embedding) Validate() error {
	if len(e) == 0 {
		return ErrInvalidEmbedding.WithError(fmt.Errorf("empty embedding"))
	}

	first := e[0]
	identical := true
	zero := true
	for i, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidEmbedding.WithError(fmt.Errorf("non-finite value at index %d", i))
		}
		if v != 0 {
			zero = false
		}
		if v != first {
			identical = false
		}
	}

	if zero {
		return ErrInvalidEmbedding.WithError(fmt.Errorf("all-zero embedding"))
	}
	if identical && len(e) > 1 {
		return ErrInvalidEmbedding.WithError(fmt.Errorf("all components identical"))
	}

	return nil
}

// MarshalBinary encodes the embedding as a little-endian float32 array.
func (e Embedding) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4*len(e))
	for i, v := range e {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf, nil
}

// UnmarshalEmbedding decodes a little-endian float32 array. The result is
// validated, so a corrupt blob never becomes a comparable embedding.
func UnmarshalEmbedding(data []byte) (Embedding, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, ErrInvalidEmbedding.WithError(fmt.Errorf("invalid encoded length %d", len(data)))
	}

	e := make(Embedding, len(data)/4)
	for i := range e {
		e[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Float64 returns a float64 copy, for callers that speak []float64 (pgvector, JSON clients).
func (e Embedding) Float64() []float64 {
	out := make([]float64, len(e))
	for i, v := range e {
		out[i] = float64(v)
	}
	return out
}

// EmbeddingFromFloat64 converts a float64 slice to an Embedding.
func EmbeddingFromFloat64(values []float64) Embedding {
	out := make(Embedding, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
