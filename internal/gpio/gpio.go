// Package gpio wraps the Linux GPIO character device for the buttons and the
// status LED. Inversion is applied here so callers only see logical states.
package gpio

import (
	"errors"
	"fmt"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"

	"github.com/r0bb10/wallpanel-remote/internal/config"
)

const consumer = "wallpanel-remote"

// Line is the subset of *gpiod.Line used by the adapters.
type Line interface {
	Value() (int, error)
	SetValue(value int) error
}

// Manager owns the chip and every requested line.
type Manager struct {
	chip    *gpiod.Chip
	inputs  map[string]*gpiod.Line
	outputs map[string]*gpiod.Line
	mu      sync.Mutex
}

// NewManager creates a manager with no chip opened.
func NewManager() *Manager {
	return &Manager{
		inputs:  make(map[string]*gpiod.Line),
		outputs: make(map[string]*gpiod.Line),
	}
}

// OpenChip opens the GPIO chip device.
func (g *Manager) OpenChip(chipName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	chip, err := gpiod.NewChip(chipName, gpiod.WithConsumer(consumer))
	if err != nil {
		return fmt.Errorf("open chip %s: %w", chipName, err)
	}
	g.chip = chip
	return nil
}

// SetupInput requests a polled input line. No edge events are requested;
// the loop samples the level every cycle.
func (g *Manager) SetupInput(cfg config.ButtonConfig) (*Input, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.chip == nil {
		return nil, fmt.Errorf("chip not opened")
	}

	opts := []gpiod.LineReqOption{gpiod.AsInput}
	if cfg.PullUp {
		opts = append(opts, gpiod.WithPullUp)
	}
	line, err := g.chip.RequestLine(cfg.Pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", cfg.Pin, err)
	}

	g.inputs[cfg.Name] = line
	return NewInput(line, cfg.Inverted), nil
}

// SetupOutput requests an output line, initially logical off.
func (g *Manager) SetupOutput(cfg config.OutputConfig) (*Output, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.chip == nil {
		return nil, fmt.Errorf("chip not opened")
	}

	line, err := g.chip.RequestLine(cfg.Pin, gpiod.AsOutput(PinValue(false, cfg.Inverted)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", cfg.Pin, err)
	}

	g.outputs[cfg.Name] = line
	return NewOutput(line, cfg.Inverted), nil
}

// Close releases all lines and the chip. Outputs keep their last value;
// callers turn them off beforehand.
func (g *Manager) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for name, line := range g.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input line %s: %w", name, err))
		}
	}
	g.inputs = make(map[string]*gpiod.Line)

	for name, line := range g.outputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output line %s: %w", name, err))
		}
	}
	g.outputs = make(map[string]*gpiod.Line)

	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		g.chip = nil
	}
	return errors.Join(errs...)
}

// Input reports the logical pressed state of a line.
type Input struct {
	line     Line
	inverted bool
}

// NewInput adapts line; inverted means LOW is active.
func NewInput(line Line, inverted bool) *Input {
	return &Input{line: line, inverted: inverted}
}

// Active reads the line and applies inversion.
func (i *Input) Active() (bool, error) {
	val, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read input: %w", err)
	}
	return LogicalState(val, i.inverted), nil
}

// Output drives a line by logical state.
type Output struct {
	line     Line
	inverted bool
}

// NewOutput adapts line; inverted means LOW is on.
func NewOutput(line Line, inverted bool) *Output {
	return &Output{line: line, inverted: inverted}
}

// Set drives the line on or off.
func (o *Output) Set(on bool) error {
	if err := o.line.SetValue(PinValue(on, o.inverted)); err != nil {
		return fmt.Errorf("set output: %w", err)
	}
	return nil
}

// LogicalState converts a pin value to a logical state considering inversion.
func LogicalState(pinVal int, inverted bool) bool {
	return (pinVal == 1 && !inverted) || (pinVal == 0 && inverted)
}

// PinValue converts a logical state to a pin value considering inversion.
func PinValue(on bool, inverted bool) int {
	if on != inverted {
		return 1
	}
	return 0
}
