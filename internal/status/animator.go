// Package status drives the three-channel board indicator at a fixed frame
// rate.
package status

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"github.com/coreman2200/stripctl/internal/led"
	"github.com/coreman2200/stripctl/model"
)

type State int

const (
	Off State = iota
	Solid
	Breathe
	Pulse
)

var stateNames = [...]string{"off", "solid", "breathe", "pulse"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func ParseState(s string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(s, n) {
			return State(i), nil
		}
	}
	return Off, fmt.Errorf("unknown indicator state %q", s)
}

// DefaultColor is shown until someone sets a state.
var DefaultColor = model.RGB{R: 0, G: 40, B: 100}

type Timing struct {
	Frame         time.Duration
	PulseOn       time.Duration
	PulsePeriod   time.Duration
	BreathePeriod time.Duration
	BreatheEase   string
}

func DefaultTiming() Timing {
	return Timing{
		Frame:         20 * time.Millisecond,
		PulseOn:       20 * time.Millisecond,
		PulsePeriod:   400 * time.Millisecond,
		BreathePeriod: 2 * time.Second,
		BreatheEase:   "smooth",
	}
}

func (t Timing) Validate() error {
	if t.Frame <= 0 {
		return errors.New("frame must be positive")
	}
	if t.PulsePeriod < t.Frame {
		return fmt.Errorf("pulse period %s shorter than a frame", t.PulsePeriod)
	}
	if t.PulseOn < 0 || t.PulseOn > t.PulsePeriod {
		return fmt.Errorf("pulse on %s outside [0,%s]", t.PulseOn, t.PulsePeriod)
	}
	if t.BreathePeriod < t.Frame {
		return fmt.Errorf("breathe period %s shorter than a frame", t.BreathePeriod)
	}
	if !validEase(t.BreatheEase) {
		return fmt.Errorf("breathe ease %q not one of %v", t.BreatheEase, Eases)
	}
	return nil
}

// value is swapped as a whole so a reader never sees a state with the
// color of another.
type value struct {
	state State
	color model.RGB
}

type Animator struct {
	out    led.Output
	timing Timing
	log    zerolog.Logger

	pulseTicks   uint64
	pulseOnTicks uint64
	breatheTicks uint64
	breathe      Envelope

	cur     atomic.Pointer[value]
	counter atomic.Uint64

	mu sync.Mutex
	t  *tomb.Tomb
}

func New(out led.Output, timing Timing, log zerolog.Logger) (*Animator, error) {
	if out == nil {
		return nil, errors.New("status: nil output")
	}
	if err := timing.Validate(); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	breathe := BreatheEnvelope(timing.BreathePeriod.Seconds(), timing.BreatheEase)
	a := &Animator{
		out:          out,
		timing:       timing,
		log:          log.With().Str("component", "status").Logger(),
		pulseTicks:   uint64(timing.PulsePeriod / timing.Frame),
		pulseOnTicks: uint64(timing.PulseOn / timing.Frame),
		breatheTicks: uint64(math.Round(breathe.Duration() / timing.Frame.Seconds())),
		breathe:      breathe,
	}
	a.cur.Store(&value{state: Solid, color: DefaultColor})
	return a, nil
}

// SetState changes the pattern and keeps the current color.
func (a *Animator) SetState(s State) {
	for {
		old := a.cur.Load()
		if a.cur.CompareAndSwap(old, &value{state: s, color: old.color}) {
			return
		}
	}
}

func (a *Animator) SetStateColor(s State, c model.RGB) {
	a.cur.Store(&value{state: s, color: c})
}

func (a *Animator) Current() (State, model.RGB) {
	v := a.cur.Load()
	return v.state, v.color
}

// Frame is the color shown on frame n for the given state and color.
func (a *Animator) Frame(s State, c model.RGB, n uint64) model.RGB {
	switch s {
	case Solid:
		return c
	case Pulse:
		if n%a.pulseTicks < a.pulseOnTicks {
			return c
		}
		return model.RGB{}
	case Breathe:
		t := float64(n%a.breatheTicks) * a.timing.Frame.Seconds()
		level := a.breathe.Eval(t)
		if math.IsNaN(level) {
			level = 0
		}
		return c.Scale(level)
	default:
		return model.RGB{}
	}
}

// Tick writes one frame and advances the counter even when the write fails.
func (a *Animator) Tick() error {
	v := a.cur.Load()
	n := a.counter.Add(1) - 1
	f := a.Frame(v.state, v.color, n)
	return a.out.Write(f.R, f.G, f.B)
}

func (a *Animator) Frames() uint64 {
	return a.counter.Load()
}

func (a *Animator) Run(ctx context.Context) error {
	a.loop(ctx.Done())
	return ctx.Err()
}

func (a *Animator) loop(done <-chan struct{}) {
	ticker := time.NewTicker(a.timing.Frame)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.Tick(); err != nil {
				a.log.Debug().Err(err).Msg("indicator write failed")
			}
		case <-done:
			return
		}
	}
}

func (a *Animator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.t != nil {
		return errors.New("status: already started")
	}
	t := &tomb.Tomb{}
	a.t = t
	t.Go(func() error {
		a.loop(t.Dying())
		return nil
	})
	return nil
}

func (a *Animator) Stop(ctx context.Context) error {
	a.mu.Lock()
	t := a.t
	a.t = nil
	a.mu.Unlock()
	if t == nil {
		return nil
	}
	t.Kill(nil)
	select {
	case <-t.Dead():
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Animator) Close() error {
	return a.out.Close()
}
