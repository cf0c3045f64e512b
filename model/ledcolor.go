package model

import (
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

const (
	WHITE_OFFSET uint8 = 0x18
	RED_OFFSET   uint8 = 0x10
	GREEN_OFFSET uint8 = 0x08
	BLUE_OFFSET  uint8 = 0x0
)

const (
	MaxHue        = 360.0
	MaxSaturation = 100.0
	MaxBrightness = 100.0
)

// Color is either an HSB or an RGBW value. ToRGBW is the only conversion
// between the two.
type Color interface {
	isColor()
}

// HSB uses the ranges the control surface speaks: hue in degrees,
// saturation and brightness in percent.
type HSB struct {
	H float64 `json:"h" yaml:"h"`
	S float64 `json:"s" yaml:"s"`
	B float64 `json:"b" yaml:"b"`
}

// RGBW is the additive representation written to the strip.
type RGBW struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
	W uint8 `json:"w" yaml:"w"`
}

// RGB is a 3-channel intensity triple, used by the status indicator.
type RGB struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

func (HSB) isColor()  {}
func (RGBW) isColor() {}

var (
	Off    = RGBW{}
	White  = NewRGBW(0xff000000)
	Red    = NewRGBW(0x00ff0000)
	Green  = NewRGBW(0x0000ff00)
	Blue   = NewRGBW(0x000000ff)
	Candle = NewRGBW(0xffff0000)
)

// NewRGBW unpacks 0xWWRRGGBB.
func NewRGBW(c uint32) RGBW {
	return RGBW{
		R: getcolor(c, RED_OFFSET),
		G: getcolor(c, GREEN_OFFSET),
		B: getcolor(c, BLUE_OFFSET),
		W: getcolor(c, WHITE_OFFSET),
	}
}

// Uint32 packs the color as 0xWWRRGGBB.
func (c RGBW) Uint32() uint32 {
	var v uint32
	v = setcolor(v, c.R, RED_OFFSET)
	v = setcolor(v, c.G, GREEN_OFFSET)
	v = setcolor(v, c.B, BLUE_OFFSET)
	v = setcolor(v, c.W, WHITE_OFFSET)
	return v
}

func (c RGBW) IsOff() bool {
	return c == Off
}

func (c RGBW) String() string {
	return fmt.Sprintf("#%08x", c.Uint32())
}

func (c RGB) IsOff() bool {
	return c == RGB{}
}

// Scale multiplies every channel by f, clamped to [0,1].
func (c RGB) Scale(f float64) RGB {
	f = clamp(f, 0, 1)
	return RGB{
		R: uint8(math.Round(float64(c.R) * f)),
		G: uint8(math.Round(float64(c.G) * f)),
		B: uint8(math.Round(float64(c.B) * f)),
	}
}

func setcolor(c uint32, n uint8, off uint8) uint32 {
	var val uint32 = uint32(n) << off
	var mask uint32 = 0xFF << off
	return (c & (^mask)) | val
}

func getcolor(c uint32, off uint8) uint8 {
	var mask uint32 = 0xFF << off
	return uint8((c & (mask)) >> off)
}

// ToRGBW converts any Color to the strip representation. HSB values are
// clamped to their ranges and the hue wraps; the white channel stays 0.
func ToRGBW(c Color) RGBW {
	switch v := c.(type) {
	case RGBW:
		return v
	case HSB:
		h := math.Mod(v.H, MaxHue)
		if h < 0 {
			h += MaxHue
		}
		s := clamp(v.S, 0, MaxSaturation) / MaxSaturation
		b := clamp(v.B, 0, MaxBrightness) / MaxBrightness
		r, g, bl := colorful.Hsv(h, s, b).Clamped().RGB255()
		return RGBW{R: r, G: g, B: bl}
	default:
		return Off
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
