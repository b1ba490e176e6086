package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForTier_IsMonotonic(t *testing.T) {
	low, medium, high := ForTier(TierLow), ForTier(TierMedium), ForTier(TierHigh)

	assert.Less(t, low.MinSimilarity, medium.MinSimilarity)
	assert.Less(t, medium.MinSimilarity, high.MinSimilarity)

	assert.Greater(t, low.MaxEuclideanDistance, medium.MaxEuclideanDistance)
	assert.Greater(t, medium.MaxEuclideanDistance, high.MaxEuclideanDistance)

	assert.Less(t, low.MinConfidence, medium.MinConfidence)
	assert.Less(t, medium.MinConfidence, high.MinConfidence)

	assert.LessOrEqual(t, low.MinContrast, medium.MinContrast)
	assert.LessOrEqual(t, medium.MinContrast, high.MinContrast)
}

func TestForTier_UnknownFallsBackToLow(t *testing.T) {
	assert.Equal(t, ForTier(TierLow), ForTier(Tier("ULTRA")))
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		input   string
		want    Tier
		wantErr bool
	}{
		{"LOW", TierLow, false},
		{"medium", TierMedium, false},
		{" High ", TierHigh, false},
		{"", "", true},
		{"max", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTier(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfile_CheckQuality(t *testing.T) {
	profile := ForTier(TierMedium)

	tests := []struct {
		name    string
		quality FrameQuality
		wantErr bool
	}{
		{name: "good frame", quality: FrameQuality{Brightness: 120, Contrast: 45, FaceRatio: 0.3}},
		{name: "too dark", quality: FrameQuality{Brightness: 10, Contrast: 45, FaceRatio: 0.3}, wantErr: true},
		{name: "overexposed", quality: FrameQuality{Brightness: 250, Contrast: 45, FaceRatio: 0.3}, wantErr: true},
		{name: "flat", quality: FrameQuality{Brightness: 120, Contrast: 5, FaceRatio: 0.3}, wantErr: true},
		{name: "face too small", quality: FrameQuality{Brightness: 120, Contrast: 45, FaceRatio: 0.01}, wantErr: true},
		{name: "face too close", quality: FrameQuality{Brightness: 120, Contrast: 45, FaceRatio: 0.95}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := profile.CheckQuality(tt.quality)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrLowQuality)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSelectTier(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want Tier
	}{
		{name: "weak device", caps: Capabilities{MemoryMB: 2048, Cores: 4, OSVersion: "9"}, want: TierLow},
		{name: "mid device", caps: Capabilities{MemoryMB: 4096, Cores: 4, OSVersion: "12"}, want: TierMedium},
		{name: "strong device", caps: Capabilities{MemoryMB: 8192, Cores: 8, OSVersion: "14.1"}, want: TierHigh},
		{name: "strong device on old OS", caps: Capabilities{MemoryMB: 8192, Cores: 8, OSVersion: "8.1"}, want: TierMedium},
		{name: "strong device unknown OS", caps: Capabilities{MemoryMB: 8192, Cores: 8}, want: TierHigh},
		{name: "memory without cores", caps: Capabilities{MemoryMB: 16384, Cores: 2}, want: TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectTier(tt.caps))
		})
	}
}
