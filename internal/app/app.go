// Package app owns the device state and runs the cooperative poll loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/r0bb10/wallpanel-remote/internal/command"
	"github.com/r0bb10/wallpanel-remote/internal/connectivity"
	"github.com/r0bb10/wallpanel-remote/internal/control"
	"github.com/r0bb10/wallpanel-remote/internal/dispatch"
	"github.com/r0bb10/wallpanel-remote/internal/indicator"
	"github.com/r0bb10/wallpanel-remote/internal/input"
	"github.com/r0bb10/wallpanel-remote/internal/logfields"
	"github.com/r0bb10/wallpanel-remote/internal/metrics"
	"github.com/r0bb10/wallpanel-remote/internal/settings"
)

// DefaultPollInterval is the loop cadence when none is configured.
const DefaultPollInterval = 5 * time.Millisecond

// Publisher mirrors device activity elsewhere, typically MQTT.
type Publisher interface {
	PublishConnectivity(state string)
	PublishActivation(channel string)
	PublishDispatch(r dispatch.Result)
}

// Options wires an Application. Store, Lamp, Link and Lines are required.
type Options struct {
	Store   settings.Store
	Buttons []input.Button
	Lamp    indicator.Lamp
	Link    connectivity.Link
	Lines   *control.Queue

	// Publisher is optional.
	Publisher Publisher
	Recorder  metrics.Recorder
	Logger    *slog.Logger

	MinPress        time.Duration
	PollInterval    time.Duration
	PulseWidth      time.Duration
	MaxAttempts     int
	ConnectInterval time.Duration
	Dispatch        dispatch.Options
}

// Application represents the running device.
type Application struct {
	current settings.Settings

	store      settings.Store
	monitor    *input.Monitor
	indicator  *indicator.Indicator
	net        *connectivity.Manager
	interp     *command.Interpreter
	dispatcher *dispatch.Dispatcher
	lines      *control.Queue
	pub        Publisher
	rec        metrics.Recorder
	log        *slog.Logger

	pollInterval time.Duration
	reload       chan struct{}
	reported     connectivity.State
	hasReported  bool
}

// New creates an application. Settings are empty until Boot.
func New(opts Options) (*Application, error) {
	var errs []error
	if opts.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if opts.Lamp == nil {
		errs = append(errs, errors.New("status lamp is required"))
	}
	if opts.Link == nil {
		errs = append(errs, errors.New("network link is required"))
	}
	if opts.Lines == nil {
		errs = append(errs, errors.New("control queue is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("new application: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	rec := metrics.OrNoop(opts.Recorder)

	a := &Application{
		store:        opts.Store,
		lines:        opts.Lines,
		pub:          opts.Publisher,
		rec:          rec,
		log:          logger,
		pollInterval: opts.PollInterval,
		reload:       make(chan struct{}, 1),
	}
	a.indicator = indicator.New(opts.Lamp, opts.PulseWidth, logger)
	a.monitor = input.NewMonitor(opts.Buttons, opts.MinPress, logger)
	a.net = connectivity.NewManager(opts.Link, connectivity.Options{
		MaxAttempts: opts.MaxAttempts,
		Interval:    opts.ConnectInterval,
		Logger:      logger,
		Recorder:    rec,
	})
	a.interp = command.NewInterpreter(a.store, &a.current, a.net, a.indicator, logger, rec)

	dopts := opts.Dispatch
	dopts.Logger = logger
	dopts.Recorder = rec
	a.dispatcher = dispatch.New(a.net, &a.current, a.indicator, dopts)
	return a, nil
}

// Settings returns a copy of the in-memory settings.
func (a *Application) Settings() settings.Settings { return a.current }

// State returns the connectivity state.
func (a *Application) State() connectivity.State { return a.net.State() }

// Indicator exposes the status indicator.
func (a *Application) Indicator() *indicator.Indicator { return a.indicator }

// Boot loads the persisted settings and, when both network credentials are
// present, starts connecting. A store failure is logged and the device
// starts with empty settings.
func (a *Application) Boot(ctx context.Context, now time.Time) {
	s, err := a.store.Load(ctx)
	if err != nil {
		a.log.Error("Failed to load settings, starting empty", logfields.Error(err))
		s = settings.Settings{}
	}
	a.current = s
	a.log.Info("Settings loaded",
		slog.String("network", s.NetworkName),
		logfields.URL(s.BaseURL),
		slog.Bool("credential", s.Credential != ""))

	if s.HasNetworkCredentials() {
		if err := a.net.Connect(now, s.NetworkName, s.NetworkSecret); err != nil {
			a.log.Error("Boot connect failed", logfields.Error(err))
		}
	}
}

// Reload rereads the persisted settings. A change of network credentials
// restarts the connection, or drops it when they are no longer complete.
func (a *Application) Reload(ctx context.Context, now time.Time) error {
	s, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}
	prev := a.current
	a.current = s
	a.log.Info("Settings reloaded")

	if s.NetworkName == prev.NetworkName && s.NetworkSecret == prev.NetworkSecret {
		return nil
	}
	if !s.HasNetworkCredentials() {
		a.net.Disconnect()
		return nil
	}
	if err := a.net.Connect(now, s.NetworkName, s.NetworkSecret); err != nil {
		a.log.Error("Reconnect failed", logfields.Error(err))
	}
	return nil
}

// RequestReload asks the loop to run Reload before its next step. It never
// blocks; requests coalesce.
func (a *Application) RequestReload() {
	select {
	case a.reload <- struct{}{}:
	default:
	}
}

// Step runs one loop iteration at now.
func (a *Application) Step(ctx context.Context, now time.Time) {
	if l, ok := a.lines.Poll(); ok {
		a.log.Debug("Control line received", logfields.Source(l.Source))
		a.interp.Execute(ctx, now, l.Text)
	}

	a.net.Tick(now)

	for _, ev := range a.monitor.Poll(now) {
		a.rec.IncActivation(ev.Channel)
		a.log.Info("Button activated",
			logfields.Channel(ev.Channel),
			logfields.Path(ev.Path),
			logfields.HeldMS(ev.Held.Milliseconds()))
		if a.pub != nil {
			a.pub.PublishActivation(ev.Channel)
		}
		res := a.dispatcher.Dispatch(ctx, ev.Path)
		if a.pub != nil {
			a.pub.PublishDispatch(res)
		}
	}

	a.indicator.Refresh(now, a.net.Connected())

	if s := a.net.State(); !a.hasReported || s != a.reported {
		a.reported, a.hasReported = s, true
		if a.pub != nil {
			a.pub.PublishConnectivity(s.String())
		}
	}
}

// Run steps the loop every poll interval until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	a.log.Info("Running", slog.Duration("poll_interval", a.pollInterval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.reload:
			if err := a.Reload(ctx, time.Now()); err != nil {
				a.log.Error("Reload failed", logfields.Error(err))
			}
		case now := <-ticker.C:
			a.Step(ctx, now)
		}
	}
}

// Shutdown turns the indicator off and closes the store. The network link
// is left as is.
func (a *Application) Shutdown() error {
	a.indicator.Off()
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
