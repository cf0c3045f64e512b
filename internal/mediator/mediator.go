// Package mediator funnels commands from any number of producers into the
// single goroutine that owns the strip.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"github.com/coreman2200/stripctl/internal/diagnostics"
	"github.com/coreman2200/stripctl/internal/mailbox"
	"github.com/coreman2200/stripctl/internal/store"
	"github.com/coreman2200/stripctl/internal/strip"
	"github.com/coreman2200/stripctl/model"
)

const DefaultPollInterval = 50 * time.Millisecond

type Mode string

const (
	SegmentMode Mode = "segment"
	StripMode   Mode = "strip"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", SegmentMode:
		return SegmentMode, nil
	case StripMode:
		return StripMode, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Driver is what the mediator needs from the strip.
type Driver interface {
	ConfigureSegment(index, length int) error
	SetFullStripColor(c model.Color) error
	SetSegmentColor(index int, c model.Color) error
	Layout() model.Layout
	Slots() int
}

type Options struct {
	Mode         Mode
	PollInterval time.Duration
	Store        store.Store
	Diagnostics  diagnostics.Publisher
	Logger       zerolog.Logger
}

// Stats counts what Poll has applied and reports what is still waiting for
// the next Poll.
type Stats struct {
	Polls          uint64 `json:"polls"`
	StateCommands  uint64 `json:"state_commands"`
	ConfigCommands uint64 `json:"config_commands"`
	Failures       uint64 `json:"failures"`
	PendingState   bool   `json:"pending_state"`
	PendingConfig  bool   `json:"pending_config"`
}

type Mediator struct {
	drv      Driver
	st       store.Store
	pub      diagnostics.Publisher
	log      zerolog.Logger
	mode     Mode
	interval time.Duration

	state  *mailbox.Mailbox[model.StateCommand]
	config *mailbox.Mailbox[model.Segment]

	layout atomic.Pointer[model.Layout]

	polls, states, configs, failures atomic.Uint64

	mu sync.Mutex
	t  *tomb.Tomb
}

func New(drv Driver, opts Options) (*Mediator, error) {
	if drv == nil {
		return nil, errors.New("mediator: nil driver")
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, fmt.Errorf("mediator: %w", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = diagnostics.Discard{}
	}
	m := &Mediator{
		drv:      drv,
		st:       opts.Store,
		pub:      opts.Diagnostics,
		log:      opts.Logger.With().Str("component", "mediator").Logger(),
		mode:     mode,
		interval: opts.PollInterval,
		state:    mailbox.New[model.StateCommand](),
		config:   mailbox.New[model.Segment](),
	}
	m.publish()
	return m, nil
}

// SendStateCommand replaces any state command not yet applied.
func (m *Mediator) SendStateCommand(cmd model.StateCommand) {
	m.state.Send(cmd)
}

// SendSegmentConfig replaces any segment config not yet applied.
func (m *Mediator) SendSegmentConfig(seg model.Segment) {
	m.config.Send(seg)
}

// Poll runs one iteration: the pending state command first, then the
// pending segment config, then a new layout snapshot. A config applied in
// the same iteration clears the color just drawn.
func (m *Mediator) Poll() {
	m.polls.Add(1)
	if cmd, ok := m.state.TryReceive(); ok {
		m.states.Add(1)
		m.applyState(cmd)
	}
	if seg, ok := m.config.TryReceive(); ok {
		m.configs.Add(1)
		m.applyConfig(seg)
	}
	m.publish()
}

func (m *Mediator) applyState(cmd model.StateCommand) {
	m.log.Debug().Int("index", cmd.Index).Bool("on", cmd.On).
		Int("hue", cmd.Hue).Int("saturation", cmd.Saturation).Int("brightness", cmd.Brightness).
		Msg("state command")

	var err error
	switch {
	case !cmd.On:
		err = m.drv.SetFullStripColor(model.Off)
	case m.mode == StripMode:
		err = m.drv.SetFullStripColor(cmd.Color())
	default:
		err = m.drv.SetSegmentColor(cmd.Index, cmd.Color())
	}
	switch {
	case err == nil:
	case errors.Is(err, strip.ErrNotConfigured):
		m.log.Warn().Int("index", cmd.Index).Msg("segment not configured")
		m.pub.Publish(diagnostics.NotConfigured(cmd.Index))
	case errors.Is(err, strip.ErrOutOfRange):
		m.failures.Add(1)
		m.log.Warn().Err(err).Int("index", cmd.Index).Msg("state command rejected")
		m.pub.Publish(diagnostics.OutOfRange(cmd.Index, m.drv.Slots()))
	default:
		m.failures.Add(1)
		m.log.Error().Err(err).Msg("render failed")
		m.pub.Publish(diagnostics.RenderFailed(err))
	}
}

func (m *Mediator) applyConfig(seg model.Segment) {
	log := m.log.With().Int("index", seg.Index).Int("length", seg.Length).Logger()
	if seg.Index < 0 || seg.Index >= m.drv.Slots() {
		m.failures.Add(1)
		log.Warn().Msg("segment config rejected, index out of range")
		m.pub.Publish(diagnostics.OutOfRange(seg.Index, m.drv.Slots()))
		return
	}
	if seg.Length < 0 {
		m.failures.Add(1)
		log.Warn().Msg("segment config rejected, negative length")
		return
	}
	if err := m.st.PutSegmentLength(seg.Index, seg.Length); err != nil {
		log.Warn().Err(err).Msg("store write failed, applying anyway")
		m.pub.Publish(diagnostics.StoreWrite(seg.Index, seg.Length, err))
	}
	if err := m.drv.ConfigureSegment(seg.Index, seg.Length); err != nil {
		m.failures.Add(1)
		log.Error().Err(err).Msg("configure failed")
		return
	}
	total := m.drv.Layout().Total()
	log.Info().Int("total", total).Msg("segment configured")
	m.pub.Publish(diagnostics.Configured(seg.Index, seg.Length, total))
}

func (m *Mediator) publish() {
	l := m.drv.Layout()
	m.layout.Store(&l)
}

// Layout is the snapshot published by the last Poll.
func (m *Mediator) Layout() model.Layout {
	return m.layout.Load().Clone()
}

func (m *Mediator) Mode() Mode {
	return m.mode
}

func (m *Mediator) Slots() int {
	return m.drv.Slots()
}

func (m *Mediator) Stats() Stats {
	return Stats{
		Polls:          m.polls.Load(),
		StateCommands:  m.states.Load(),
		ConfigCommands: m.configs.Load(),
		Failures:       m.failures.Load(),
		PendingState:   m.state.Pending(),
		PendingConfig:  m.config.Pending(),
	}
}

// Run polls every interval until ctx is done.
func (m *Mediator) Run(ctx context.Context) error {
	m.loop(ctx.Done())
	return ctx.Err()
}

func (m *Mediator) loop(done <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.log.Info().Dur("interval", m.interval).Str("mode", string(m.mode)).Msg("polling")
	for {
		select {
		case <-ticker.C:
			m.Poll()
		case <-done:
			return
		}
	}
}

func (m *Mediator) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t != nil {
		return errors.New("mediator: already started")
	}
	t := &tomb.Tomb{}
	m.t = t
	t.Go(func() error {
		m.loop(t.Dying())
		return nil
	})
	return nil
}

// Stop ends the loop started by Start and waits for it.
func (m *Mediator) Stop(ctx context.Context) error {
	m.mu.Lock()
	t := m.t
	m.t = nil
	m.mu.Unlock()
	if t == nil {
		return nil
	}
	m.log.Info().Msg("stopping")
	t.Kill(nil)
	select {
	case <-t.Dead():
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
