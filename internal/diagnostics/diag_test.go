package diagnostics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFansOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	h.Publish(NotConfigured(3))
	got := <-a
	assert.Equal(t, SegmentNotConfigured, got.Code)
	assert.False(t, got.Time.IsZero())
	assert.Equal(t, 3, (<-b).Evidence["index"])

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	h.now = func() time.Time { return time.Unix(10, 0) }
	ch, cancel := h.Subscribe(1)
	defer cancel()

	h.Publish(RenderFailed(errors.New("spi")))
	h.Publish(StoreWrite(1, 2, errors.New("disk")))
	assert.Equal(t, 1, h.Dropped())
	d := <-ch
	assert.Equal(t, StripRenderFailed, d.Code)
	assert.Equal(t, Err, d.Severity)
	assert.Equal(t, time.Unix(10, 0), d.Time)
}

func TestConstructorsCarryCodes(t *testing.T) {
	cases := []struct {
		d    Diagnostic
		code string
	}{
		{OutOfRange(12, 10), SegmentOutOfRange},
		{StoreRead(0, errors.New("x")), StoreReadFailed},
		{Configured(1, 4, 9), StripConfigured},
	}
	for _, c := range cases {
		require.Equal(t, c.code, c.d.Code)
		assert.Contains(t, c.d.String(), c.code)
	}
	Discard{}.Publish(Configured(0, 0, 0))
}
