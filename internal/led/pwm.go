package led

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// DefaultPWMFreq is the carrier the controller board has always used for the
// status LED.
const DefaultPWMFreq = 5 * physic.KiloHertz

// PWM drives a common-cathode RGB LED with one PWM pin per channel.
type PWM struct {
	mu     sync.Mutex
	pins   [3]gpio.PinOut
	freq   physic.Frequency
	last   [3]uint8
	primed bool
}

// OpenPWM looks the three pins up by name in the periph registry.
func OpenPWM(red, green, blue string, freq physic.Frequency) (*PWM, error) {
	var pins [3]gpio.PinOut
	for i, name := range []string{red, green, blue} {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("pwm: no gpio pin named %q", name)
		}
		pins[i] = p
	}
	return NewPWM(pins[0], pins[1], pins[2], freq), nil
}

func NewPWM(red, green, blue gpio.PinOut, freq physic.Frequency) *PWM {
	if freq <= 0 {
		freq = DefaultPWMFreq
	}
	return &PWM{pins: [3]gpio.PinOut{red, green, blue}, freq: freq}
}

// Write sets each channel duty. Unchanged values are not rewritten.
func (p *PWM) Write(r, g, b uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := [3]uint8{r, g, b}
	if p.primed && v == p.last {
		return nil
	}
	var errs []error
	for i, pin := range p.pins {
		if err := pin.PWM(Duty(v[i]), p.freq); err != nil {
			errs = append(errs, fmt.Errorf("pwm %s: %w", pin, err))
		}
	}
	if len(errs) > 0 {
		p.primed = false
		return errors.Join(errs...)
	}
	p.last = v
	p.primed = true
	return nil
}

// Close drives every channel low.
func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, pin := range p.pins {
		if err := pin.Out(gpio.Low); err != nil {
			errs = append(errs, err)
		}
	}
	p.primed = false
	return errors.Join(errs...)
}

// Duty maps an 8-bit intensity to a periph duty cycle.
func Duty(v uint8) gpio.Duty {
	return gpio.Duty(int64(v) * int64(gpio.DutyMax) / 255)
}
