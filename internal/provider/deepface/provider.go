package deepface

import (
	"context"
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
)

// Provider implements provider.Embedder using DeepFace API
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// Ping checks the model server.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Embed represents the image and returns the largest face found.
func (p *Provider) Embed(ctx context.Context, image []byte) (*provider.Face, error) {
	if len(image) == 0 {
		return nil, domain.ErrBadRequest.WithError(errors.New("empty image"))
	}

	resp, err := p.client.Represent(ctx, image)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, domain.ErrLowQualityImage.WithError(err)
		}
		return nil, domain.ErrEmbedderUnavailable.WithError(err)
	}

	best, ok := largestFace(resp.Results)
	if !ok {
		return nil, domain.ErrNoFaceDetected.WithError(ErrNoFaceInResponse)
	}

	embedding := domain.EmbeddingFromFloat64(best.Embedding)
	if err := embedding.Validate(); err != nil {
		return nil, fmt.Errorf("deepface embedding: %w", err)
	}

	return &provider.Face{
		Embedding: embedding,
		BoundingBox: provider.BoundingBox{
			X:      float64(best.FacialArea.X),
			Y:      float64(best.FacialArea.Y),
			Width:  float64(best.FacialArea.W),
			Height: float64(best.FacialArea.H),
		},
		Confidence: best.FaceConfidence,
		Faces:      len(resp.Results),
	}, nil
}

// largestFace picks the face with the biggest area. With enforce_detection
// off DeepFace answers a frame without faces by embedding the whole image
// at face_confidence 0; such results are skipped.
func largestFace(results []RepresentResult) (RepresentResult, bool) {
	var (
		best  RepresentResult
		found bool
	)
	for _, r := range results {
		if len(r.Embedding) == 0 || r.FaceConfidence <= 0 {
			continue
		}
		if !found || r.FacialArea.W*r.FacialArea.H > best.FacialArea.W*best.FacialArea.H {
			best = r
			found = true
		}
	}
	return best, found
}
