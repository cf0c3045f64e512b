package led

import (
	"image"
	"sync"

	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/stripctl/model"
)

type drawer interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// Console renders the strip as a line of ANSI colored cells on the terminal.
// It is the fallback when no SPI port is available.
type Console struct {
	mu        sync.Mutex
	newDrawer func(pixels int) drawer
	d         drawer
	img       *image.NRGBA
}

func NewConsole() *Console {
	c := &Console{
		newDrawer: func(pixels int) drawer { return screen.New(pixels) },
	}
	c.img = image.NewNRGBA(image.Rect(0, 0, 0, 1))
	return c
}

func (c *Console) Resize(pixels int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pixels < 0 {
		pixels = 0
	}
	c.img = image.NewNRGBA(image.Rect(0, 0, pixels, 1))
	c.d = nil
	if pixels > 0 {
		c.d = c.newDrawer(pixels)
	}
	return nil
}

func (c *Console) SetPixel(position int, col model.RGBW) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if position < 0 || position >= c.img.Rect.Max.X {
		return
	}
	c.img.SetNRGBA(position, 0, toNRGBA(col))
}

func (c *Console) Show() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.d == nil {
		return nil
	}
	return c.d.Draw(c.img.Bounds(), c.img, image.Point{})
}

func (c *Console) Close() error {
	return nil
}
