package capture

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ValidRotation reports whether degrees is one of the supported orientations
func ValidRotation(degrees int) bool {
	switch degrees {
	case 0, 90, 180, 270:
		return true
	default:
		return false
	}
}

// Rotate turns img clockwise by degrees. imaging rotates counter-clockwise,
// hence the swapped 90/270 calls.
func Rotate(img image.Image, degrees int) (image.Image, error) {
	switch degrees {
	case 0:
		return img, nil
	case 90:
		return imaging.Rotate270(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate90(img), nil
	default:
		return nil, fmt.Errorf("unsupported rotation: %d degrees", degrees)
	}
}
