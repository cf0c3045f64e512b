package strip

import (
	"errors"
	"fmt"

	"github.com/coreman2200/stripctl/internal/led"
	"github.com/coreman2200/stripctl/model"
)

var (
	ErrOutOfRange    = errors.New("segment index out of range")
	ErrNotConfigured = errors.New("segment not configured")
	ErrInvalidLength = errors.New("invalid segment length")
)

// Driver owns the segment length table and the pixel buffer that spans
// every configured segment. It is not safe for concurrent use; a single
// owner (the mediator) drives it.
type Driver struct {
	dev    led.Strip
	layout model.Layout
	buf    []model.RGBW

	renders int
}

// New returns a driver with slots unconfigured segments and an empty
// buffer.
func New(dev led.Strip, slots int) (*Driver, error) {
	if dev == nil {
		return nil, errors.New("strip: nil device")
	}
	if slots <= 0 {
		return nil, fmt.Errorf("strip: invalid slot count %d", slots)
	}
	if err := dev.Resize(0); err != nil {
		return nil, fmt.Errorf("strip: resize device: %w", err)
	}
	return &Driver{
		dev:    dev,
		layout: model.NewLayout(slots),
	}, nil
}

func (d *Driver) checkIndex(index int) error {
	if index < 0 || index >= d.layout.Slots() {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, index, d.layout.Slots())
	}
	return nil
}

// ConfigureSegment sets the length of one slot and reallocates the buffer
// for the new total. Every pixel is cleared, even when the length did not
// change. Nothing is rendered.
func (d *Driver) ConfigureSegment(index, length int) error {
	if err := d.checkIndex(index); err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	next, err := d.layout.WithLength(index, length)
	if err != nil {
		return err
	}
	total := next.Total()
	if err := d.dev.Resize(total); err != nil {
		return fmt.Errorf("strip: resize device to %d: %w", total, err)
	}
	d.layout = next
	d.buf = make([]model.RGBW, total)
	return nil
}

// SetFullStripColor paints every pixel and renders once.
func (d *Driver) SetFullStripColor(c model.Color) error {
	col := model.ToRGBW(c)
	for i := range d.buf {
		d.buf[i] = col
	}
	return d.Render()
}

// SetSegmentColor paints the range of one segment and renders the whole
// buffer. An unconfigured segment is left alone and nothing is rendered.
func (d *Driver) SetSegmentColor(index int, c model.Color) error {
	if err := d.checkIndex(index); err != nil {
		return err
	}
	if d.layout.Length(index) == 0 {
		return fmt.Errorf("%w: segment %d", ErrNotConfigured, index)
	}
	col := model.ToRGBW(c)
	r := d.layout.Range(index)
	for i := r.Start; i < r.End; i++ {
		d.buf[i] = col
	}
	return d.Render()
}

// Render pushes the buffer to the device.
func (d *Driver) Render() error {
	for i, c := range d.buf {
		d.dev.SetPixel(i, c)
	}
	if err := d.dev.Show(); err != nil {
		return fmt.Errorf("strip: show: %w", err)
	}
	d.renders++
	return nil
}

func (d *Driver) Layout() model.Layout {
	return d.layout.Clone()
}

func (d *Driver) Pixels() []model.RGBW {
	return append([]model.RGBW(nil), d.buf...)
}

func (d *Driver) Total() int {
	return len(d.buf)
}

func (d *Driver) Slots() int {
	return d.layout.Slots()
}

// Renders counts successful renders since construction.
func (d *Driver) Renders() int {
	return d.renders
}

func (d *Driver) Close() error {
	return d.dev.Close()
}
