// Package input turns sampled button levels into activation events.
//
// Detection is edge-armed: the press edge records a start time and the
// release edge decides. A release emits an Event only when the button was
// held for at least the minimum press duration. Shorter presses are dropped
// as contact noise.
package input

import (
	"log/slog"
	"time"

	"github.com/r0bb10/wallpanel-remote/internal/logfields"
)

// DefaultMinPress is the reference debounce threshold.
const DefaultMinPress = 50 * time.Millisecond

// Sensor reports the logical pressed state of one input.
type Sensor interface {
	Active() (bool, error)
}

// Button binds a sensor to the API path it triggers.
type Button struct {
	Name   string
	Path   string
	Sensor Sensor
}

// Event is emitted once per qualifying release.
type Event struct {
	Channel string
	Path    string
	Held    time.Duration
}

type channel struct {
	Button
	down      bool
	pressedAt time.Time
}

// Monitor polls a fixed set of buttons.
type Monitor struct {
	channels []*channel
	minPress time.Duration
	log      *slog.Logger
}

// NewMonitor creates a monitor. A non-positive minPress selects
// DefaultMinPress.
func NewMonitor(buttons []Button, minPress time.Duration, logger *slog.Logger) *Monitor {
	if minPress <= 0 {
		minPress = DefaultMinPress
	}
	if logger == nil {
		logger = slog.Default()
	}
	chans := make([]*channel, 0, len(buttons))
	for _, b := range buttons {
		chans = append(chans, &channel{Button: b})
	}
	return &Monitor{channels: chans, minPress: minPress, log: logger}
}

// Poll samples every button once and returns the events completed at now.
// Channels are independent; several may fire in one call.
func (m *Monitor) Poll(now time.Time) []Event {
	var events []Event
	for _, ch := range m.channels {
		pressed, err := ch.Sensor.Active()
		if err != nil {
			m.log.Warn("Input read failed", logfields.Channel(ch.Name), logfields.Error(err))
			continue
		}

		switch {
		case pressed && !ch.down:
			ch.down = true
			ch.pressedAt = now
		case !pressed && ch.down:
			ch.down = false
			held := now.Sub(ch.pressedAt)
			if held < m.minPress {
				m.log.Debug("Press too short, ignored",
					logfields.Channel(ch.Name), logfields.HeldMS(held.Milliseconds()))
				continue
			}
			events = append(events, Event{Channel: ch.Name, Path: ch.Path, Held: held})
		}
	}
	return events
}

// Down reports whether the named channel is currently armed.
func (m *Monitor) Down(name string) bool {
	for _, ch := range m.channels {
		if ch.Name == name {
			return ch.down
		}
	}
	return false
}
