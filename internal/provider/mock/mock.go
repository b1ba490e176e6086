package mock

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
	"github.com/saturnino-fabrica-de-software/ponto/internal/similarity"
)

const (
	embeddingDimension = 128
	minImageSize       = 64
)

// Provider is a deterministic provider.Embedder for development terminals
// without a model server: the same image bytes always give the same embedding.
type Provider struct {
	dimension int
}

func New() *Provider {
	return &Provider{dimension: embeddingDimension}
}

// Embed derives a unit-length embedding from the image hash.
func (p *Provider) Embed(ctx context.Context, image []byte) (*provider.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(image) < minImageSize {
		return nil, domain.ErrNoFaceDetected.WithError(fmt.Errorf("image of %d bytes", len(image)))
	}

	return &provider.Face{
		Embedding:   generateEmbedding(image, p.dimension),
		BoundingBox: provider.BoundingBox{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.8},
		Confidence:  0.99,
		Faces:       1,
	}, nil
}

// generateEmbedding spreads the image hash over dimension components
func generateEmbedding(image []byte, dimension int) domain.Embedding {
	hash := sha256.Sum256(image)
	embedding := make([]float32, dimension)
	hashLen := len(hash)

	for i := 0; i < dimension; i++ {
		// mix the index in so components are never all identical
		b := hash[i%hashLen] ^ byte(i*31)
		embedding[i] = (float32(b)/255.0)*2 - 1
	}

	return domain.Embedding(similarity.Normalize(embedding))
}

var _ provider.Embedder = (*Provider)(nil)
