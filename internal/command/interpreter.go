package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/r0bb10/wallpanel-remote/internal/logfields"
	"github.com/r0bb10/wallpanel-remote/internal/metrics"
	"github.com/r0bb10/wallpanel-remote/internal/settings"
)

// Connector is the part of the connectivity manager the interpreter drives.
type Connector interface {
	Connect(now time.Time, ssid, secret string) error
	Disconnect()
}

// Acknowledger shows the factory-reset acknowledgment.
type Acknowledger interface {
	Acknowledge(now time.Time)
}

// Interpreter applies commands to the in-memory settings and the store.
type Interpreter struct {
	store   settings.Store
	current *settings.Settings
	net     Connector
	ack     Acknowledger
	log     *slog.Logger
	rec     metrics.Recorder
}

// NewInterpreter wires an interpreter. ack may be nil.
func NewInterpreter(store settings.Store, current *settings.Settings, net Connector, ack Acknowledger,
	logger *slog.Logger, rec metrics.Recorder) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		store:   store,
		current: current,
		net:     net,
		ack:     ack,
		log:     logger,
		rec:     metrics.OrNoop(rec),
	}
}

// Execute parses and applies one line. Failures are logged, never returned:
// the control channel has no response protocol.
func (i *Interpreter) Execute(ctx context.Context, now time.Time, line string) {
	cmd := Parse(line)
	if cmd == nil {
		return
	}
	i.rec.IncCommand(cmd.Kind())

	switch c := cmd.(type) {
	case SetNetworkName:
		i.current.NetworkName = c.Value
		i.log.Info("Network name set", slog.String("network", c.Value))
		i.persist(ctx, cmd)
		i.reconnect(now)
	case SetNetworkSecret:
		i.current.NetworkSecret = c.Value
		i.log.Info("Network secret set", slog.Int("length", len(c.Value)))
		i.persist(ctx, cmd)
		i.reconnect(now)
	case SetBaseURL:
		i.current.BaseURL = c.Value
		i.log.Info("Base URL set", logfields.URL(c.Value))
		i.persist(ctx, cmd)
	case SetCredential:
		i.current.Credential = c.Value
		i.log.Info("API key set", slog.Int("length", len(c.Value)))
		i.persist(ctx, cmd)
	case FactoryReset:
		i.factoryReset(ctx, now)
	case Unknown:
		i.log.Warn("Unknown command", slog.String("line", c.Line))
	}
}

func (i *Interpreter) persist(ctx context.Context, cmd Command) {
	if err := i.store.Save(ctx, *i.current); err != nil {
		i.log.Error("Failed to save settings", logfields.Command(cmd.Kind()), logfields.Error(err))
	}
}

func (i *Interpreter) reconnect(now time.Time) {
	if !i.current.HasNetworkCredentials() {
		return
	}
	if err := i.net.Connect(now, i.current.NetworkName, i.current.NetworkSecret); err != nil {
		i.log.Error("Reconnect failed", logfields.Error(err))
	}
}

func (i *Interpreter) factoryReset(ctx context.Context, now time.Time) {
	if err := i.store.Reset(ctx); err != nil {
		i.log.Error("Failed to erase settings", logfields.Error(err))
	}
	*i.current = settings.Settings{}
	i.net.Disconnect()
	if i.ack != nil {
		i.ack.Acknowledge(now)
	}
	i.log.Info("Flash reset complete")
}
