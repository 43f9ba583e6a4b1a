package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/r0bb10/wallpanel-remote/internal/config"
	"github.com/r0bb10/wallpanel-remote/internal/connectivity"
	"github.com/r0bb10/wallpanel-remote/internal/settings"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars{"version": "test"}, kong.Bind(&cli))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, ctx
}

func TestRunIsDefaultCommand(t *testing.T) {
	cli, ctx := parse(t)
	assert.Equal(t, "run", ctx.Command())
	assert.Equal(t, "config.yaml", cli.Config)
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("WALLPANEL_CONFIG", "/etc/wallpanel/config.yaml")
	cli, _ := parse(t, "settings", "show")
	assert.Equal(t, "/etc/wallpanel/config.yaml", cli.Config)
}

// newEnv writes a config whose store lives in a temp dir.
func newEnv(t *testing.T) (*CLI, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{"store": map[string]any{"path": filepath.Join(dir, "settings.db")}}
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return &CLI{Config: path}, filepath.Join(dir, "settings.db")
}

func loadStored(t *testing.T, dbPath string) settings.Settings {
	t.Helper()
	store, err := settings.NewSQLiteStore(dbPath, settings.DefaultNamespace)
	require.NoError(t, err)
	defer store.Close()
	s, err := store.Load(t.Context())
	require.NoError(t, err)
	return s
}

func TestSendUpdatesStore(t *testing.T) {
	cli, db := newEnv(t)

	require.NoError(t, (&SendCmd{Line: []string{"BASE_URL", "https://api.example.com"}}).Run(cli))
	require.NoError(t, (&SendCmd{Line: []string{"WIFI_SSID", "home"}}).Run(cli))
	require.NoError(t, (&SendCmd{Line: []string{"WIFI_PASS", "secret1"}}).Run(cli))

	assert.Equal(t, settings.Settings{
		NetworkName:   "home",
		NetworkSecret: "secret1",
		BaseURL:       "https://api.example.com",
	}, loadStored(t, db))
}

func TestSettingsShowMasksSecrets(t *testing.T) {
	cli, _ := newEnv(t)
	require.NoError(t, (&SendCmd{Line: []string{"API_KEY", "dXNlcjpwYXNz"}}).Run(cli))

	var out bytes.Buffer
	orig := stdout
	stdout = &out
	t.Cleanup(func() { stdout = orig })

	require.NoError(t, (&SettingsShowCmd{}).Run(cli))
	assert.NotContains(t, out.String(), "dXNlcjpwYXNz")
	assert.Contains(t, out.String(), "api_key:")

	out.Reset()
	require.NoError(t, (&SettingsShowCmd{Reveal: true}).Run(cli))
	assert.Contains(t, out.String(), "dXNlcjpwYXNz")
}

func TestSettingsResetNeedsConfirmation(t *testing.T) {
	cli, db := newEnv(t)
	require.NoError(t, (&SendCmd{Line: []string{"BASE_URL", "http://10.0.0.5"}}).Run(cli))

	require.Error(t, (&SettingsResetCmd{}).Run(cli))
	assert.Equal(t, "http://10.0.0.5", loadStored(t, db).BaseURL)

	require.NoError(t, (&SettingsResetCmd{Yes: true}).Run(cli))
	assert.Equal(t, settings.Settings{}, loadStored(t, db))
}

func TestNewLink(t *testing.T) {
	l, err := newLink(config.NetworkConfig{Link: config.LinkStatic})
	require.NoError(t, err)
	assert.IsType(t, &connectivity.StaticLink{}, l)

	l, err = newLink(config.NetworkConfig{Link: config.LinkNmcli, Interface: "wlan0"})
	require.NoError(t, err)
	assert.IsType(t, &connectivity.NmcliLink{}, l)

	_, err = newLink(config.NetworkConfig{Link: "carrier-pigeon"})
	assert.Error(t, err)
}
