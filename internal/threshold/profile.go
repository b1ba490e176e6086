package threshold

import (
	"errors"
	"fmt"
	"strings"
)

// Tier classifies the host's compute budget.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// ErrLowQuality is returned by Profile.CheckQuality when a frame fails an image gate.
var ErrLowQuality = errors.New("frame quality below profile gates")

// ParseTier accepts LOW/MEDIUM/HIGH in any case.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierLow:
		return TierLow, nil
	case TierMedium:
		return TierMedium, nil
	case TierHigh:
		return TierHigh, nil
	default:
		return "", fmt.Errorf("unknown capability tier %q (supported: %s, %s, %s)", s, TierLow, TierMedium, TierHigh)
	}
}

// Profile is an immutable bundle of match and image-quality thresholds.
// It is chosen once per session and passed by value.
type Profile struct {
	Tier                 Tier
	MinSimilarity        float64
	MaxEuclideanDistance float64
	MinConfidence        float64
	MinBrightness        float64
	MaxBrightness        float64
	MinContrast          float64
	MinFaceRatio         float64
	MaxFaceRatio         float64
}

// Static table. LOW keeps false rejects down on weak cameras, HIGH keeps
// false accepts down where more quality checks are affordable.
var profiles = map[Tier]Profile{
	TierLow: {
		Tier:                 TierLow,
		MinSimilarity:        0.80,
		MaxEuclideanDistance: 0.75,
		MinConfidence:        0.55,
		MinBrightness:        30,
		MaxBrightness:        230,
		MinContrast:          15,
		MinFaceRatio:         0.08,
		MaxFaceRatio:         0.90,
	},
	TierMedium: {
		Tier:                 TierMedium,
		MinSimilarity:        0.85,
		MaxEuclideanDistance: 0.60,
		MinConfidence:        0.62,
		MinBrightness:        40,
		MaxBrightness:        220,
		MinContrast:          20,
		MinFaceRatio:         0.10,
		MaxFaceRatio:         0.85,
	},
	TierHigh: {
		Tier:                 TierHigh,
		MinSimilarity:        0.90,
		MaxEuclideanDistance: 0.45,
		MinConfidence:        0.70,
		MinBrightness:        50,
		MaxBrightness:        210,
		MinContrast:          25,
		MinFaceRatio:         0.12,
		MaxFaceRatio:         0.80,
	},
}

// ForTier returns the profile for tier. Unknown tiers fall back to LOW.
func ForTier(tier Tier) Profile {
	if p, ok := profiles[tier]; ok {
		return p
	}
	return profiles[TierLow]
}

// FrameQuality carries the image measurements of the frame a probe came from.
// Brightness and contrast are on a 0-255 scale; FaceRatio is face area over frame area.
type FrameQuality struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	FaceRatio  float64 `json:"face_ratio"`
}

// CheckQuality applies the image gates of the profile.
func (p Profile) CheckQuality(q FrameQuality) error {
	switch {
	case q.Brightness < p.MinBrightness:
		return fmt.Errorf("%w: brightness %.1f < %.1f", ErrLowQuality, q.Brightness, p.MinBrightness)
	case q.Brightness > p.MaxBrightness:
		return fmt.Errorf("%w: brightness %.1f > %.1f", ErrLowQuality, q.Brightness, p.MaxBrightness)
	case q.Contrast < p.MinContrast:
		return fmt.Errorf("%w: contrast %.1f < %.1f", ErrLowQuality, q.Contrast, p.MinContrast)
	case q.FaceRatio < p.MinFaceRatio:
		return fmt.Errorf("%w: face ratio %.3f < %.3f", ErrLowQuality, q.FaceRatio, p.MinFaceRatio)
	case q.FaceRatio > p.MaxFaceRatio:
		return fmt.Errorf("%w: face ratio %.3f > %.3f", ErrLowQuality, q.FaceRatio, p.MaxFaceRatio)
	}
	return nil
}
