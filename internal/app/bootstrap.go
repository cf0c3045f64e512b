package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/stripctl/internal/config"
	"github.com/coreman2200/stripctl/internal/control"
	"github.com/coreman2200/stripctl/internal/diagnostics"
	"github.com/coreman2200/stripctl/internal/led"
	"github.com/coreman2200/stripctl/internal/mediator"
	"github.com/coreman2200/stripctl/internal/restore"
	"github.com/coreman2200/stripctl/internal/status"
	"github.com/coreman2200/stripctl/internal/store"
	"github.com/coreman2200/stripctl/internal/strip"
	"github.com/coreman2200/stripctl/model"
)

// BoardState is shown on the status indicator while the service comes up.
type BoardState int

const (
	Booting BoardState = iota
	Restoring
	Serving
	Ready
)

func (b BoardState) String() string {
	switch b {
	case Booting:
		return "booting"
	case Restoring:
		return "restoring"
	case Serving:
		return "serving"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("board(%d)", int(b))
}

// Indication is the indicator pattern for a board state.
func (b BoardState) Indication() (status.State, model.RGB) {
	switch b {
	case Booting:
		return status.Breathe, model.RGB{R: 255}
	case Restoring:
		return status.Breathe, model.RGB{R: 255, G: 80}
	case Serving:
		return status.Breathe, model.RGB{G: 255}
	default:
		return status.Solid, model.RGB{G: 5}
	}
}

// Devices are the hardware ends of the service.
type Devices struct {
	Strip  led.Strip
	Status led.Output
	Store  store.Store
}

// OpenDevices opens what cfg asks for. A strip or indicator that cannot be
// opened is replaced by the console or a simulated output, and a store that
// cannot be opened by an in-memory one, so the service still comes up.
func OpenDevices(cfg *config.Config, log zerolog.Logger) Devices {
	var d Devices
	if cfg.Strip.Driver == "spi" || cfg.Status.Driver == "pwm" {
		if err := led.InitHost(); err != nil {
			log.Warn().Err(err).Msg("periph host init failed")
		}
	}

	switch cfg.Strip.Driver {
	case "spi":
		freq := physic.Frequency(cfg.Strip.FreqKHz) * physic.KiloHertz
		nrz, err := led.NewNRZ(led.OpenSPIPort(cfg.Strip.SPIPort), cfg.Strip.Channels, freq)
		if err != nil {
			log.Warn().Err(err).Str("port", cfg.Strip.SPIPort).Msg("SPI strip unavailable; falling back to console")
			d.Strip = led.NewConsole()
		} else {
			log.Info().Str("device", nrz.String()).Msg("SPI strip open")
			d.Strip = nrz
		}
	case "console":
		d.Strip = led.NewConsole()
	default:
		d.Strip = led.NewSim()
	}

	switch cfg.Status.Driver {
	case "pwm":
		freq := physic.Frequency(cfg.Status.PWMFreqHz) * physic.Hertz
		pwm, err := led.OpenPWM(cfg.Status.RedPin, cfg.Status.GreenPin, cfg.Status.BluePin, freq)
		if err != nil {
			log.Warn().Err(err).Msg("indicator pins unavailable; using simulated output")
			d.Status = led.NewSimOutput()
		} else {
			d.Status = pwm
		}
	default:
		d.Status = led.NewSimOutput()
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Store.Path).Msg("store unavailable; layout will not survive restart")
		st = store.NewMemory()
	}
	d.Store = st
	return d
}

// Core owns every long-lived part of the service.
type Core struct {
	Cfg      *config.Config
	Strip    *strip.Driver
	Mediator *mediator.Mediator
	Status   *status.Animator
	Hub      *diagnostics.Hub
	Control  *control.Server

	dev  Devices
	root zerolog.Logger
	log  zerolog.Logger
}

func InitCore(cfg *config.Config, dev Devices, log zerolog.Logger) (*Core, error) {
	if dev.Strip == nil || dev.Status == nil || dev.Store == nil {
		return nil, errors.New("app: missing device")
	}
	drv, err := strip.New(dev.Strip, cfg.Strip.Segments)
	if err != nil {
		return nil, err
	}
	mode, err := mediator.ParseMode(cfg.Strip.Mode)
	if err != nil {
		return nil, err
	}
	hub := diagnostics.NewHub()
	med, err := mediator.New(drv, mediator.Options{
		Mode:         mode,
		PollInterval: cfg.Strip.PollInterval,
		Store:        dev.Store,
		Diagnostics:  hub,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	anim, err := status.New(dev.Status, status.Timing{
		Frame:         cfg.Status.Frame,
		PulseOn:       cfg.Status.PulseOn,
		PulsePeriod:   cfg.Status.PulsePeriod,
		BreathePeriod: cfg.Status.BreathePeriod,
		BreatheEase:   cfg.Status.BreatheEase,
	}, log)
	if err != nil {
		return nil, err
	}
	c := &Core{
		Cfg:      cfg,
		Strip:    drv,
		Mediator: med,
		Status:   anim,
		Hub:      hub,
		Control:  control.New(med, anim, hub, log),
		dev:      dev,
		root:     log,
		log:      log.With().Str("component", "core").Logger(),
	}
	c.SetBoardState(Booting)
	return c, nil
}

func (c *Core) SetBoardState(b BoardState) {
	s, col := b.Indication()
	c.Status.SetStateColor(s, col)
	c.log.Info().Str("board", b.String()).Msg("board state")
}

// Start runs the indicator, restores the layout and only then starts the
// mediator, so no command reaches the strip before the restore is done.
func (c *Core) Start() error {
	if err := c.Status.Start(); err != nil {
		return err
	}
	c.SetBoardState(Restoring)
	restore.RunWith(c.dev.Store, c.Strip, c.Hub, c.root)
	c.Mediator.Poll()
	if err := c.Mediator.Start(); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return errors.Join(err, c.Status.Stop(ctx))
	}
	c.SetBoardState(Serving)
	return nil
}

func (c *Core) Stop(ctx context.Context) error {
	var errs []error
	if err := c.Mediator.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mediator: %w", err))
	}
	if err := c.Status.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("status: %w", err))
	}
	if err := c.Strip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("strip: %w", err))
	}
	if err := c.Status.Close(); err != nil {
		errs = append(errs, fmt.Errorf("indicator: %w", err))
	}
	if err := store.Close(c.dev.Store); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}
