package provider

import (
	"context"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// Embedder turns a camera frame into a face embedding. Implementations wrap
// an external model; the terminal never computes embeddings itself.
type Embedder interface {
	// Embed returns the representation of the dominant face in the image.
	// It fails with domain.ErrNoFaceDetected when the image has no face.
	Embed(ctx context.Context, image []byte) (*Face, error)
}

// Face is one embedded face.
type Face struct {
	Embedding   domain.Embedding `json:"embedding"`
	BoundingBox BoundingBox      `json:"bounding_box"`
	Confidence  float64          `json:"confidence"`
	// Faces is how many faces the model found in the frame.
	Faces int `json:"faces"`
}

// BoundingBox represents the face area in the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area in pixels.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}
