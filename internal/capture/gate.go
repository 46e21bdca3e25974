package capture

import (
	"image"

	"github.com/cuongbtq/printcheck-station/internal/domain"
	"github.com/disintegration/imaging"
)

const (
	// DefaultMaxDarkRatio is the dark-pixel fraction at which a frame is rejected
	DefaultMaxDarkRatio = 0.99
	// DefaultDarkThreshold is the luminance at or below which a pixel counts as dark
	DefaultDarkThreshold = 10
)

// Gate rejects blank or black frames. It only checks sensor-level sanity,
// never whether the scene is correct.
type Gate struct {
	maxDarkRatio  float64
	darkThreshold uint8
}

// NewGate creates a Gate. A non-positive ratio selects DefaultMaxDarkRatio;
// the threshold is taken as given, so 0 counts only pure black as dark.
func NewGate(maxDarkRatio float64, darkThreshold int) *Gate {
	if maxDarkRatio <= 0 {
		maxDarkRatio = DefaultMaxDarkRatio
	}
	darkThreshold = min(max(darkThreshold, 0), 255)
	return &Gate{maxDarkRatio: maxDarkRatio, darkThreshold: uint8(darkThreshold)}
}

// IsUsable reports whether a frame is fit for validation. A nil frame never is.
func (g *Gate) IsUsable(frame *domain.Frame) bool {
	if frame == nil || frame.Image == nil {
		return false
	}
	ratio, ok := g.DarkRatio(frame.Image)
	if !ok {
		return false
	}
	return ratio < g.maxDarkRatio
}

// PairUsable reports whether both frames of an acquisition pass the gate
func (g *Gate) PairUsable(pair *domain.FramePair) bool {
	if pair == nil {
		return false
	}
	return g.IsUsable(pair.Meter) && g.IsUsable(pair.NIC)
}

// DarkRatio returns the fraction of pixels whose luminance is at or below the
// threshold. ok is false for an empty image.
func (g *Gate) DarkRatio(img image.Image) (ratio float64, ok bool) {
	gray := imaging.Grayscale(img)
	total := len(gray.Pix) / 4
	if total == 0 {
		return 0, false
	}

	dark := 0
	for i := 0; i < len(gray.Pix); i += 4 {
		if gray.Pix[i] <= g.darkThreshold {
			dark++
		}
	}
	return float64(dark) / float64(total), true
}
