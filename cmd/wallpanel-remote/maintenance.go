package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/r0bb10/wallpanel-remote/internal/command"
)

var stdout io.Writer = os.Stdout

// SettingsCmd groups the stored-settings maintenance commands.
type SettingsCmd struct {
	Show  SettingsShowCmd  `cmd:"" help:"Print the stored settings with secrets masked"`
	Reset SettingsResetCmd `cmd:"" help:"Erase the stored settings"`
}

// settingsView is the YAML shape printed by 'settings show'.
type settingsView struct {
	NetworkName   string `yaml:"ssid"`
	NetworkSecret string `yaml:"pass"`
	BaseURL       string `yaml:"base_url"`
	Credential    string `yaml:"api_key"`
}

// SettingsShowCmd implements 'settings show'.
type SettingsShowCmd struct {
	Reveal bool `help:"Print secrets in clear text"`
}

func (c *SettingsShowCmd) Run(root *CLI) error {
	store, err := root.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := store.Load(context.Background())
	if err != nil {
		return err
	}
	if !c.Reveal {
		s = s.Redacted()
	}
	data, err := yaml.Marshal(settingsView(s))
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = stdout.Write(data)
	return err
}

// SettingsResetCmd implements 'settings reset'.
type SettingsResetCmd struct {
	Yes bool `help:"Confirm erasing every stored value"`
}

func (c *SettingsResetCmd) Run(root *CLI) error {
	if !c.Yes {
		return errors.New("refusing to erase settings without --yes")
	}
	store, err := root.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(context.Background()); err != nil {
		return err
	}
	slog.Info("Settings erased")
	return nil
}

// SendCmd implements 'send': one control line applied to the store without
// touching the network. A running remote picks the result up on SIGHUP.
type SendCmd struct {
	Line []string `arg:"" help:"Control line, e.g. BASE_URL https://api.example.com"`
}

func (c *SendCmd) Run(root *CLI) error {
	store, err := root.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	current, err := store.Load(ctx)
	if err != nil {
		return err
	}
	interp := command.NewInterpreter(store, &current, offlineConnector{}, nil, slog.Default(), nil)
	interp.Execute(ctx, time.Now(), strings.Join(c.Line, " "))
	return nil
}

// offlineConnector stands in for the connectivity manager when no device
// loop is running.
type offlineConnector struct{}

func (offlineConnector) Connect(_ time.Time, ssid, _ string) error {
	slog.Info("Network credentials stored; send SIGHUP to a running remote to connect",
		slog.String("network", ssid))
	return nil
}

func (offlineConnector) Disconnect() {}

var _ command.Connector = offlineConnector{}
