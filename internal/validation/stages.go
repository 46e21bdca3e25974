package validation

import (
	"context"
	"image"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// CheckResult is the answer of the logo, position and OCR stages
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Passed reports whether the stage accepted the image
func (r CheckResult) Passed() bool {
	return r.Status == StatusPass
}

// QRResult is the answer of a QR decode. PositionOK and SizeOK are only set
// when bounds checking was requested.
type QRResult struct {
	Codes      []string `json:"codes"`
	Error      string   `json:"error,omitempty"`
	PositionOK *bool    `json:"position_ok,omitempty"`
	SizeOK     *bool    `json:"size_ok,omitempty"`
}

// Readable reports whether at least one code was decoded without error
func (r QRResult) Readable() bool {
	return r.Error == "" && len(r.Codes) > 0
}

// Stages is the external vision collaborator. A returned error means the
// stage could not run at all; a failed check is reported in the result.
type Stages interface {
	Logos(ctx context.Context, img image.Image, artworkPath string) (CheckResult, error)
	Position(ctx context.Context, img image.Image, artworkPath string) (CheckResult, error)
	QR(ctx context.Context, img image.Image, checkLimits bool) (QRResult, error)
	OCR(ctx context.Context, img image.Image) (CheckResult, error)
}
