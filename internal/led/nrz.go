package led

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"

	"github.com/coreman2200/stripctl/model"
)

// DefaultNRZFreq is the SPI clock nrzled needs for WS281x bit timing.
const DefaultNRZFreq = 2500 * physic.KiloHertz

// PortOpener returns a fresh SPI port. NRZ calls it once per Resize because
// nrzled fixes the pixel count at construction.
type PortOpener func() (spi.Port, error)

// OpenSPIPort opens a port from the periph registry; "" picks the first one.
func OpenSPIPort(name string) PortOpener {
	return func() (spi.Port, error) {
		p, err := spireg.Open(name)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NRZ drives WS281x/SK6812 strips through periph's nrzled SPI encoder.
type NRZ struct {
	mu   sync.Mutex
	open PortOpener
	opts nrzled.Opts

	port spi.Port
	dev  *nrzled.Dev
	raw  []byte
}

// NewNRZ opens the port with zero pixels. channels is 3 for RGB strips and 4
// for RGBW strips.
func NewNRZ(open PortOpener, channels int, freq physic.Frequency) (*NRZ, error) {
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("nrz: unsupported channel count %d", channels)
	}
	if freq <= 0 {
		freq = DefaultNRZFreq
	}
	n := &NRZ{
		open: open,
		opts: nrzled.Opts{Channels: channels, Freq: freq},
	}
	if err := n.Resize(0); err != nil {
		return nil, err
	}
	return n, nil
}

// Resize reopens the port at the new pixel count. When that fails the device
// is reopened at its previous size with the previous pixel data, so a failed
// resize leaves the strip usable.
func (n *NRZ) Resize(pixels int) error {
	if pixels < 0 {
		return fmt.Errorf("nrz: invalid pixel count %d", pixels)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	prev, prevRaw, wasOpen := n.opts.NumPixels, n.raw, n.dev != nil
	n.release()
	err := n.connect(pixels)
	if err == nil {
		return nil
	}
	if !wasOpen {
		return err
	}
	if rerr := n.connect(prev); rerr != nil {
		return errors.Join(err, fmt.Errorf("nrz: restore %d pixels: %w", prev, rerr))
	}
	copy(n.raw, prevRaw)
	return err
}

func (n *NRZ) connect(pixels int) error {
	p, err := n.open()
	if err != nil {
		return fmt.Errorf("nrz: open spi port: %w", err)
	}
	o := n.opts
	o.NumPixels = pixels
	d, err := nrzled.NewSPI(p, &o)
	if err != nil {
		closePort(p)
		return fmt.Errorf("nrz: %w", err)
	}
	n.port = p
	n.dev = d
	n.opts.NumPixels = pixels
	n.raw = make([]byte, pixels*o.Channels)
	return nil
}

func (n *NRZ) SetPixel(position int, c model.RGBW) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if position < 0 || position >= n.opts.NumPixels {
		return
	}
	ch := n.opts.Channels
	px := n.raw[position*ch : position*ch+ch]
	if ch == 4 {
		px[0], px[1], px[2], px[3] = c.R, c.G, c.B, c.W
		return
	}
	folded := toNRGBA(c)
	px[0], px[1], px[2] = folded.R, folded.G, folded.B
}

func (n *NRZ) Show() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev == nil {
		return fmt.Errorf("nrz: device not open")
	}
	if n.opts.NumPixels == 0 {
		return nil
	}
	if _, err := n.dev.Write(n.raw); err != nil {
		return fmt.Errorf("nrz: write: %w", err)
	}
	return nil
}

func (n *NRZ) Pixels() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opts.NumPixels
}

func (n *NRZ) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev == nil {
		return "nrz{closed}"
	}
	return n.dev.String()
}

func (n *NRZ) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.release()
}

func (n *NRZ) release() error {
	var err error
	if n.dev != nil {
		err = n.dev.Halt()
		n.dev = nil
	}
	if n.port != nil {
		closePort(n.port)
		n.port = nil
	}
	return err
}

func closePort(p spi.Port) {
	if c, ok := p.(io.Closer); ok {
		_ = c.Close()
	}
}
