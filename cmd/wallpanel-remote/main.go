package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/r0bb10/wallpanel-remote/internal/config"
	"github.com/r0bb10/wallpanel-remote/internal/logfields"
	"github.com/r0bb10/wallpanel-remote/internal/settings"
)

var version = "dev"

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml" env:"WALLPANEL_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging" env:"WALLPANEL_VERBOSE"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" default:"1" help:"Run the remote (default)"`
	Settings SettingsCmd `cmd:"" help:"Inspect or erase the stored device settings"`
	Send     SendCmd     `cmd:"" help:"Apply one control command to the stored settings"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig reads the boot config, falling back to defaults when the file
// is absent.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, found, err := config.LoadOrDefault(c.Config)
	if err != nil {
		return config.Config{}, err
	}
	if !found {
		slog.Warn("Config file not found, using defaults", slog.String("path", c.Config))
	}
	return cfg, nil
}

func (c *CLI) openStore() (*settings.SQLiteStore, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return settings.NewSQLiteStore(cfg.Store.Path, cfg.Store.Namespace)
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wallpanel-remote"),
		kong.Description("Wall panel remote: buttons to HTTP requests, configured over a line protocol."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Bind(&cli),
	)
	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", logfields.Error(err))
		os.Exit(1)
	}
}
