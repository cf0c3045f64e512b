package led

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/stripctl/model"
)

func recordingOpener(bufs *[]*bytes.Buffer) PortOpener {
	return func() (spi.Port, error) {
		b := &bytes.Buffer{}
		*bufs = append(*bufs, b)
		return spitest.NewRecordRaw(b), nil
	}
}

func TestNRZResizeReopensPort(t *testing.T) {
	var bufs []*bytes.Buffer
	n, err := NewNRZ(recordingOpener(&bufs), 4, 0)
	require.NoError(t, err)
	require.Len(t, bufs, 1)
	assert.Equal(t, 0, n.Pixels())

	require.NoError(t, n.Resize(3))
	require.Len(t, bufs, 2)
	assert.Equal(t, 3, n.Pixels())

	before := bufs[1].Len()
	n.SetPixel(0, model.Red)
	n.SetPixel(2, model.White)
	n.SetPixel(9, model.Blue)
	require.NoError(t, n.Show())
	assert.Greater(t, bufs[1].Len(), before, "show must write the encoded frame")

	require.NoError(t, n.Close())
	assert.Error(t, n.Show())
}

// failingOpener records like recordingOpener but fails the calls listed in
// fail, counted from 1.
func failingOpener(bufs *[]*bytes.Buffer, fail ...int) PortOpener {
	calls := 0
	next := recordingOpener(bufs)
	return func() (spi.Port, error) {
		calls++
		for _, f := range fail {
			if calls == f {
				return nil, errors.New("spi busy")
			}
		}
		return next()
	}
}

func TestNRZFailedResizeKeepsDevice(t *testing.T) {
	var bufs []*bytes.Buffer
	n, err := NewNRZ(failingOpener(&bufs, 3), 4, 0)
	require.NoError(t, err)
	require.NoError(t, n.Resize(3))
	n.SetPixel(1, model.Green)

	err = n.Resize(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spi busy")
	assert.Equal(t, 3, n.Pixels(), "pixel count is kept")
	require.Len(t, bufs, 3, "device is reopened at the old size")

	require.NoError(t, n.Show())
	assert.Positive(t, bufs[2].Len())
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 255, 0, 0, 0, 0, 0, 0}, n.raw, "pixel data survives")
}

func TestNRZFailedResizeAndRestore(t *testing.T) {
	var bufs []*bytes.Buffer
	n, err := NewNRZ(failingOpener(&bufs, 3, 4), 4, 0)
	require.NoError(t, err)
	require.NoError(t, n.Resize(2))

	err = n.Resize(4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore 2 pixels")
	assert.Error(t, n.Show())

	require.NoError(t, n.Resize(4), "a later resize recovers")
	assert.NoError(t, n.Show())
}

func TestNRZEmptyStripShows(t *testing.T) {
	var bufs []*bytes.Buffer
	n, err := NewNRZ(recordingOpener(&bufs), 3, DefaultNRZFreq)
	require.NoError(t, err)
	assert.NoError(t, n.Show())
}

func TestNRZRejectsBadInput(t *testing.T) {
	var bufs []*bytes.Buffer
	_, err := NewNRZ(recordingOpener(&bufs), 5, 0)
	assert.Error(t, err)

	failing := func() (spi.Port, error) { return nil, errors.New("no spi") }
	_, err = NewNRZ(failing, 4, 0)
	assert.Error(t, err)

	n, err := NewNRZ(recordingOpener(&bufs), 4, 0)
	require.NoError(t, err)
	assert.Error(t, n.Resize(-1))
}

type fakeDrawer struct {
	draws int
	last  *image.NRGBA
}

func (d *fakeDrawer) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	d.draws++
	d.last = src.(*image.NRGBA)
	return nil
}

func TestConsoleDrawsFoldedColors(t *testing.T) {
	fd := &fakeDrawer{}
	c := NewConsole()
	c.newDrawer = func(pixels int) drawer { return fd }

	require.NoError(t, c.Show())
	assert.Zero(t, fd.draws, "nothing to draw on an empty strip")

	require.NoError(t, c.Resize(2))
	c.SetPixel(0, model.RGBW{R: 200, W: 100})
	c.SetPixel(5, model.Red)
	require.NoError(t, c.Show())
	require.Equal(t, 1, fd.draws)
	px := fd.last.NRGBAAt(0, 0)
	assert.Equal(t, uint8(255), px.R)
	assert.Equal(t, uint8(100), px.G)
	assert.Equal(t, uint8(100), px.B)
	require.NoError(t, c.Close())
}

func TestSimRecordsShownFrames(t *testing.T) {
	s := NewSim()
	require.NoError(t, s.Resize(2))
	s.SetPixel(1, model.Green)
	s.SetPixel(-1, model.Green)
	assert.Equal(t, []model.RGBW{model.Off, model.Off}, s.Frame(), "pixels are invisible until Show")

	require.NoError(t, s.Show())
	assert.Equal(t, []model.RGBW{model.Off, model.Green}, s.Frame())
	assert.Equal(t, 1, s.Shows())
	assert.Equal(t, 1, s.Resizes())
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Resize(1))
	assert.Equal(t, []model.RGBW{model.Off}, s.Frame())
}

func TestPWMWritesDuty(t *testing.T) {
	r := &gpiotest.Pin{N: "R"}
	g := &gpiotest.Pin{N: "G"}
	b := &gpiotest.Pin{N: "B"}
	p := NewPWM(r, g, b, 0)

	require.NoError(t, p.Write(255, 128, 0))
	assert.Equal(t, gpio.DutyMax, r.D)
	assert.Equal(t, Duty(128), g.D)
	assert.Equal(t, gpio.Duty(0), b.D)
	assert.Equal(t, DefaultPWMFreq, r.F)

	require.NoError(t, p.Close())
	assert.Equal(t, gpio.Low, r.L)
}

func TestOpenPWMUnknownPin(t *testing.T) {
	_, err := OpenPWM("NO_SUCH_RED", "NO_SUCH_GREEN", "NO_SUCH_BLUE", 0)
	assert.Error(t, err)
}

func TestSimOutput(t *testing.T) {
	o := NewSimOutput()
	require.NoError(t, o.Write(1, 2, 3))
	assert.Equal(t, model.RGB{R: 1, G: 2, B: 3}, o.Last())
	assert.Equal(t, 1, o.Writes())
	assert.NoError(t, o.Close())
}
