package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/r0bb10/wallpanel-remote/internal/app"
	"github.com/r0bb10/wallpanel-remote/internal/config"
	"github.com/r0bb10/wallpanel-remote/internal/connectivity"
	"github.com/r0bb10/wallpanel-remote/internal/control"
	"github.com/r0bb10/wallpanel-remote/internal/dispatch"
	"github.com/r0bb10/wallpanel-remote/internal/gpio"
	"github.com/r0bb10/wallpanel-remote/internal/input"
	"github.com/r0bb10/wallpanel-remote/internal/logfields"
	"github.com/r0bb10/wallpanel-remote/internal/metrics"
	"github.com/r0bb10/wallpanel-remote/internal/mqttbridge"
	"github.com/r0bb10/wallpanel-remote/internal/settings"
)

const metricsShutdownTimeout = 5 * time.Second

// RunCmd implements the 'run' command.
type RunCmd struct {
	Port string `help:"Control port override: a device path, \"auto\" or \"stdin\""`
}

func (r *RunCmd) Run(root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if r.Port != "" {
		cfg.Serial.Port = r.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runDevice(ctx, cfg, slog.Default())
}

func runDevice(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	gm := gpio.NewManager()
	if err := gm.OpenChip(cfg.Chip); err != nil {
		return err
	}
	defer func() {
		if err := gm.Close(); err != nil {
			logger.Warn("Failed to release GPIO", logfields.Error(err))
		}
	}()

	buttons := make([]input.Button, 0, len(cfg.Buttons))
	for _, bc := range cfg.Buttons {
		in, err := gm.SetupInput(bc)
		if err != nil {
			return err
		}
		buttons = append(buttons, input.Button{Name: bc.Name, Path: bc.Path, Sensor: in})
	}
	led, err := gm.SetupOutput(cfg.StatusLED)
	if err != nil {
		return err
	}

	link, err := newLink(cfg.Network)
	if err != nil {
		return err
	}

	rec, stopMetrics := startMetrics(cfg.Metrics, logger)
	defer stopMetrics()

	lines := control.NewQueue(control.DefaultQueueSize, logger)
	if err := startControlReader(ctx, cfg.Serial, lines, logger); err != nil {
		return err
	}

	var pub app.Publisher
	if cfg.MQTT.Broker != "" {
		bridge := mqttbridge.New(mqttbridge.Options{
			Broker:      cfg.MQTT.Broker,
			User:        cfg.MQTT.User,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
		}, lines, logger)
		if err := bridge.Connect(); err != nil {
			logger.Warn("MQTT not connected yet, retrying in background", logfields.Error(err))
		}
		defer bridge.Close()
		pub = bridge
	}

	store, err := settings.NewSQLiteStore(cfg.Store.Path, cfg.Store.Namespace)
	if err != nil {
		return err
	}

	application, err := app.New(app.Options{
		Store:           store,
		Buttons:         buttons,
		Lamp:            led,
		Link:            link,
		Lines:           lines,
		Publisher:       pub,
		Recorder:        rec,
		Logger:          logger,
		MinPress:        cfg.Debounce(),
		PollInterval:    cfg.PollInterval(),
		MaxAttempts:     cfg.Network.Attempts,
		ConnectInterval: cfg.Network.ConnectInterval(),
		Dispatch:        dispatch.Options{InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify},
	})
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := application.Shutdown(); err != nil {
			logger.Warn("Shutdown incomplete", logfields.Error(err))
		}
	}()

	application.Boot(ctx, time.Now())
	watchReload(ctx, application, logger)

	err = application.Run(ctx)
	logger.Info("Shutting down")
	return err
}

func newLink(n config.NetworkConfig) (connectivity.Link, error) {
	switch n.Link {
	case config.LinkNmcli:
		return connectivity.NewNmcliLink(n.Interface), nil
	case config.LinkStatic:
		return &connectivity.StaticLink{}, nil
	default:
		return nil, fmt.Errorf("unknown network link %q", n.Link)
	}
}

// startMetrics serves /metrics when configured. The returned func stops
// the server.
func startMetrics(mc config.MetricsConfig, logger *slog.Logger) (metrics.Recorder, func()) {
	if mc.Listen == "" {
		return metrics.NoopRecorder{}, func() {}
	}

	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: mc.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", slog.String("addr", mc.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()

	return rec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// startControlReader feeds the serial port or stdin into lines until ctx
// is done.
func startControlReader(ctx context.Context, sc config.SerialConfig, lines *control.Queue, logger *slog.Logger) error {
	rc, name, err := control.Open(sc.Port, sc.Baud)
	if err != nil {
		return err
	}
	source := "serial"
	if name == control.PortStdin {
		source = "stdin"
	}
	logger.Info("Control channel open", logfields.Source(source), slog.String("port", name))

	go func() {
		<-ctx.Done()
		_ = rc.Close()
	}()
	go func() {
		err := control.ReadLines(ctx, rc, source, lines)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Control channel closed", logfields.Source(source), logfields.Error(err))
		}
	}()
	return nil
}

// watchReload turns SIGHUP into reload requests for the loop.
func watchReload(ctx context.Context, a *app.Application, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("Received SIGHUP, reloading settings")
				a.RequestReload()
			}
		}
	}()
}
