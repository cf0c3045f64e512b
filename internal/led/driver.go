package led

import (
	"image/color"

	"github.com/coreman2200/stripctl/model"
)

// Strip abstracts an addressable pixel strip. Writes made with SetPixel are
// invisible until Show is called.
type Strip interface {
	// Resize changes the pixel count. Prior pixel contents are discarded.
	// On error the strip keeps its previous size and stays usable.
	Resize(pixels int) error
	// SetPixel stores c at position. Positions outside the strip are ignored.
	SetPixel(position int, c model.RGBW)
	// Show pushes the pixels to hardware.
	Show() error
	// Close releases resources.
	Close() error
}

// Output is a 3-channel intensity sink, one 8-bit value per channel.
type Output interface {
	Write(r, g, b uint8) error
	Close() error
}

// toNRGBA folds the white channel into RGB for sinks without a white LED.
func toNRGBA(c model.RGBW) color.NRGBA {
	return color.NRGBA{
		R: addSat(c.R, c.W),
		G: addSat(c.G, c.W),
		B: addSat(c.B, c.W),
		A: 255,
	}
}

func addSat(a, b uint8) uint8 {
	s := uint16(a) + uint16(b)
	if s > 255 {
		return 255
	}
	return uint8(s)
}
