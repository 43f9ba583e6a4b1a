// Package indicator drives the single status LED.
package indicator

import (
	"log/slog"
	"time"

	"github.com/r0bb10/wallpanel-remote/internal/logfields"
)

const (
	// AckPulses is the number of on/off pulses shown after a factory reset.
	AckPulses = 3
	// DefaultPulseWidth is the on (and off) time of one acknowledgment pulse.
	DefaultPulseWidth = 150 * time.Millisecond

	blinkPeriodMS = 1000
	blinkOnMS     = 500
)

// Lamp is a logical on/off output.
type Lamp interface {
	Set(on bool) error
}

// Indicator resolves the display intents onto one Lamp. Priority, highest
// first: request in flight, reset acknowledgment, disconnected blink, off.
type Indicator struct {
	lamp       Lamp
	pulseWidth time.Duration
	log        *slog.Logger

	written  bool
	level    bool
	busy     bool
	acking   bool
	ackStart time.Time
	pulses   int
}

// New creates an indicator. A non-positive pulseWidth selects
// DefaultPulseWidth.
func New(lamp Lamp, pulseWidth time.Duration, logger *slog.Logger) *Indicator {
	if pulseWidth <= 0 {
		pulseWidth = DefaultPulseWidth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicator{lamp: lamp, pulseWidth: pulseWidth, log: logger}
}

// BeginActivity turns the lamp on for an in-flight request. The loop is
// blocked while the request runs, so the lamp is written immediately.
func (i *Indicator) BeginActivity() {
	i.busy = true
	i.write(true)
}

// EndActivity clears the in-flight intent and turns the lamp off. The next
// Refresh restores whatever lower-priority intent applies.
func (i *Indicator) EndActivity() {
	i.busy = false
	i.write(false)
}

// Acknowledge starts the reset acknowledgment sequence at now.
func (i *Indicator) Acknowledge(now time.Time) {
	i.acking = true
	i.ackStart = now
}

// Pulses returns the number of completed acknowledgment sequences.
func (i *Indicator) Pulses() int {
	return i.pulses
}

// Refresh drives the lamp for the current time and connectivity.
func (i *Indicator) Refresh(now time.Time, connected bool) {
	if i.busy {
		i.write(true)
		return
	}
	if i.acking {
		elapsed := now.Sub(i.ackStart)
		if elapsed < 0 {
			elapsed = 0
		}
		slot := int(elapsed / i.pulseWidth)
		if slot < 2*AckPulses {
			i.write(slot%2 == 0)
			return
		}
		i.acking = false
		i.pulses++
	}
	if !connected {
		i.write(Blink(now))
		return
	}
	i.write(false)
}

// Off clears every intent and turns the lamp off.
func (i *Indicator) Off() {
	i.busy = false
	i.acking = false
	i.write(false)
}

// Blink is the disconnected pattern: on for the first half of every second.
func Blink(now time.Time) bool {
	return now.UnixMilli()%blinkPeriodMS < blinkOnMS
}

func (i *Indicator) write(on bool) {
	if i.written && i.level == on {
		return
	}
	if err := i.lamp.Set(on); err != nil {
		i.log.Debug("Status LED write failed", logfields.Error(err))
		return
	}
	i.written = true
	i.level = on
}
