// Package connectivity manages the network link as a state machine that is
// advanced once per loop iteration. Connecting never blocks the caller;
// the link is checked at a fixed interval until it comes up or the attempt
// budget runs out.
package connectivity

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/r0bb10/wallpanel-remote/internal/logfields"
	"github.com/r0bb10/wallpanel-remote/internal/metrics"
)

// State is the connectivity state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrMissingCredentials is returned by Connect when the network name or
	// secret is empty.
	ErrMissingCredentials = errors.New("network name and secret are required")
	// ErrAttemptsExhausted is reported when the link never came up.
	ErrAttemptsExhausted = errors.New("connection attempts exhausted")
)

// Reference connection budget: 20 checks, 500ms apart.
const (
	DefaultMaxAttempts = 20
	DefaultInterval    = 500 * time.Millisecond
)

// Link is the underlying network link.
type Link interface {
	// Begin starts associating with the network and returns without waiting.
	Begin(ssid, secret string) error
	// Up reports whether the link is established.
	Up() bool
	// Drop tears the link down.
	Drop() error
}

// Options configures a Manager.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Logger      *slog.Logger
	Recorder    metrics.Recorder
	// OnChange, when set, is called after every state transition.
	OnChange func(from, to State)
}

// Manager owns the connectivity state. It is not safe for concurrent use;
// the device loop is its only caller.
type Manager struct {
	link        Link
	maxAttempts int
	interval    time.Duration
	log         *slog.Logger
	rec         metrics.Recorder
	onChange    func(from, to State)

	state     State
	attempts  int
	nextCheck time.Time
	network   string
}

// NewManager creates a manager in the Disconnected state.
func NewManager(link Link, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		link:        link,
		maxAttempts: opts.MaxAttempts,
		interval:    opts.Interval,
		log:         opts.Logger,
		rec:         metrics.OrNoop(opts.Recorder),
		onChange:    opts.OnChange,
	}
	m.rec.SetConnectivity(m.state.String())
	return m
}

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Connected reports whether the state is Connected.
func (m *Manager) Connected() bool { return m.state == Connected }

// Attempts returns the number of link checks made in the current sequence.
func (m *Manager) Attempts() int { return m.attempts }

// Connect starts a new connection sequence at now. Any current link is
// dropped first. With an empty ssid or secret nothing happens and
// ErrMissingCredentials is returned.
func (m *Manager) Connect(now time.Time, ssid, secret string) error {
	if ssid == "" || secret == "" {
		m.log.Warn("Connect skipped: missing network credentials")
		return ErrMissingCredentials
	}

	if m.state != Disconnected {
		if err := m.link.Drop(); err != nil {
			m.log.Debug("Drop before reconnect failed", logfields.Error(err))
		}
	}

	m.network = ssid
	m.attempts = 0
	if err := m.link.Begin(ssid, secret); err != nil {
		m.log.Error("Connect failed to start", slog.String("network", ssid), logfields.Error(err))
		m.rec.IncConnectResult(false)
		m.transition(Disconnected)
		return fmt.Errorf("begin connect: %w", err)
	}

	m.log.Info("Connecting", slog.String("network", ssid))
	m.nextCheck = now.Add(m.interval)
	m.transition(Connecting)
	return nil
}

// Disconnect forces the Disconnected state. It is idempotent.
func (m *Manager) Disconnect() {
	if m.state == Disconnected {
		return
	}
	if err := m.link.Drop(); err != nil {
		m.log.Warn("Link drop failed", logfields.Error(err))
	}
	m.attempts = 0
	m.log.Info("Disconnected", slog.String("network", m.network))
	m.transition(Disconnected)
}

// Tick advances the state machine. Link checks happen at most once per
// interval.
func (m *Manager) Tick(now time.Time) {
	if m.state == Disconnected || now.Before(m.nextCheck) {
		return
	}
	m.nextCheck = now.Add(m.interval)

	switch m.state {
	case Connecting:
		m.attempts++
		m.rec.IncConnectAttempt()
		if m.link.Up() {
			m.log.Info("Connected", slog.String("network", m.network), logfields.Attempt(m.attempts))
			m.rec.IncConnectResult(true)
			m.transition(Connected)
			return
		}
		m.log.Debug("Waiting for link", logfields.Attempt(m.attempts))
		if m.attempts >= m.maxAttempts {
			m.log.Error("Connect failed", slog.String("network", m.network),
				logfields.Attempt(m.attempts), logfields.Error(ErrAttemptsExhausted))
			if err := m.link.Drop(); err != nil {
				m.log.Debug("Link drop failed", logfields.Error(err))
			}
			m.rec.IncConnectResult(false)
			m.transition(Disconnected)
		}
	case Connected:
		if !m.link.Up() {
			m.log.Warn("Link lost", slog.String("network", m.network))
			if err := m.link.Drop(); err != nil {
				m.log.Debug("Link drop failed", logfields.Error(err))
			}
			m.transition(Disconnected)
		}
	}
}

func (m *Manager) transition(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.rec.SetConnectivity(to.String())
	if m.onChange != nil {
		m.onChange(from, to)
	}
}
