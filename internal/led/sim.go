package led

import (
	"sync"

	"github.com/coreman2200/stripctl/model"
)

// Sim is an in-memory strip. It keeps the last shown frame and counts calls,
// which makes it the strip of choice for headless runs and tests.
type Sim struct {
	mu      sync.Mutex
	pending []model.RGBW
	shown   []model.RGBW
	resizes int
	shows   int
}

func NewSim() *Sim {
	return &Sim{}
}

func (s *Sim) Resize(pixels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pixels < 0 {
		pixels = 0
	}
	s.pending = make([]model.RGBW, pixels)
	s.shown = make([]model.RGBW, pixels)
	s.resizes++
	return nil
}

func (s *Sim) SetPixel(position int, c model.RGBW) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if position < 0 || position >= len(s.pending) {
		return
	}
	s.pending[position] = c
}

func (s *Sim) Show() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown[:0], s.pending...)
	s.shows++
	return nil
}

func (s *Sim) Close() error {
	return nil
}

// Frame returns a copy of the last shown pixels.
func (s *Sim) Frame() []model.RGBW {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RGBW{}, s.shown...)
}

func (s *Sim) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Sim) Shows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shows
}

func (s *Sim) Resizes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizes
}

// SimOutput records what a status indicator would display.
type SimOutput struct {
	mu     sync.Mutex
	last   model.RGB
	writes int
}

func NewSimOutput() *SimOutput {
	return &SimOutput{}
}

func (o *SimOutput) Write(r, g, b uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = model.RGB{R: r, G: g, B: b}
	o.writes++
	return nil
}

func (o *SimOutput) Close() error {
	return nil
}

func (o *SimOutput) Last() model.RGB {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *SimOutput) Writes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writes
}
