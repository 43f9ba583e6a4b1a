package command

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r0bb10/wallpanel-remote/internal/settings"
)

type fakeConnector struct {
	connects    [][2]string
	disconnects int
}

func (f *fakeConnector) Connect(_ time.Time, ssid, secret string) error {
	f.connects = append(f.connects, [2]string{ssid, secret})
	return nil
}

func (f *fakeConnector) Disconnect() { f.disconnects++ }

type fakeAck struct{ calls int }

func (f *fakeAck) Acknowledge(time.Time) { f.calls++ }

type harness struct {
	interp  *Interpreter
	store   *settings.MemoryStore
	current *settings.Settings
	net     *fakeConnector
	ack     *fakeAck
	logs    *bytes.Buffer
}

func newHarness() *harness {
	h := &harness{
		store:   settings.NewMemoryStore(),
		current: &settings.Settings{},
		net:     &fakeConnector{},
		ack:     &fakeAck{},
		logs:    &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h.interp = NewInterpreter(h.store, h.current, h.net, h.ack, logger, nil)
	return h
}

func (h *harness) exec(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		h.interp.Execute(t.Context(), time.Unix(1000, 0), l)
	}
}

func (h *harness) logLines() []string {
	out := strings.TrimSpace(h.logs.String())
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestSettersPersistSnapshots(t *testing.T) {
	h := newHarness()
	h.exec(t, "BASE_URL http://10.0.0.5", "API_KEY dXNlcjpwYXNz")

	assert.Equal(t, 2, h.store.Saves())
	stored, err := h.store.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, settings.Settings{BaseURL: "http://10.0.0.5", Credential: "dXNlcjpwYXNz"}, stored)
	assert.Equal(t, stored, *h.current)
	assert.Empty(t, h.net.connects)
}

func TestReconnectOnlyWithBothCredentials(t *testing.T) {
	h := newHarness()

	h.exec(t, "WIFI_SSID home")
	assert.Empty(t, h.net.connects, "secret still missing")

	h.exec(t, "WIFI_PASS secret1")
	require.Len(t, h.net.connects, 1)
	assert.Equal(t, [2]string{"home", "secret1"}, h.net.connects[0])

	h.exec(t, "WIFI_SSID office")
	require.Len(t, h.net.connects, 2)
	assert.Equal(t, [2]string{"office", "secret1"}, h.net.connects[1])

	h.exec(t, "WIFI_PASS")
	assert.Len(t, h.net.connects, 2, "empty secret does not reconnect")
	assert.Equal(t, "", h.current.NetworkSecret)
}

func TestFactoryReset(t *testing.T) {
	h := newHarness()
	h.exec(t, "WIFI_SSID home", "WIFI_PASS secret1", "BASE_URL http://10.0.0.5", "API_KEY abc")

	h.exec(t, "FLASH_RESET")

	stored, err := h.store.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, settings.Settings{}, stored)
	assert.Equal(t, settings.Settings{}, *h.current)
	assert.Equal(t, 1, h.store.Resets())
	assert.Equal(t, 1, h.net.disconnects)
	assert.Equal(t, 1, h.ack.calls)
	assert.Contains(t, h.logs.String(), "Flash reset complete")
}

func TestUnknownCommandLogsOnce(t *testing.T) {
	h := newHarness()
	h.exec(t, "BASE_URL http://10.0.0.5")
	before := *h.current
	h.logs.Reset()

	h.exec(t, "FOO BAR")

	assert.Equal(t, before, *h.current)
	assert.Equal(t, 1, h.store.Saves(), "no extra save")
	lines := h.logLines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Unknown command")
	assert.Contains(t, lines[0], "FOO BAR")
}

func TestBlankLineIsSilent(t *testing.T) {
	h := newHarness()
	h.exec(t, "", "  \r\n")
	assert.Empty(t, h.logLines())
	assert.Zero(t, h.store.Saves())
}

func TestSecretsAreNotLogged(t *testing.T) {
	h := newHarness()
	h.exec(t, "WIFI_PASS hunter2", "API_KEY dXNlcjpwYXNz")
	assert.NotContains(t, h.logs.String(), "hunter2")
	assert.NotContains(t, h.logs.String(), "dXNlcjpwYXNz")
}

func TestSaveFailureKeepsInMemoryValue(t *testing.T) {
	h := newHarness()
	h.store.Err = errors.New("disk full")

	h.exec(t, "BASE_URL http://10.0.0.5")

	assert.Equal(t, "http://10.0.0.5", h.current.BaseURL)
	assert.Contains(t, h.logs.String(), "Failed to save settings")
}

func TestResetFailureStillClears(t *testing.T) {
	h := newHarness()
	h.exec(t, "BASE_URL http://10.0.0.5")
	h.store.Err = errors.New("disk gone")

	h.exec(t, "FLASH_RESET")

	assert.Equal(t, settings.Settings{}, *h.current)
	assert.Equal(t, 1, h.net.disconnects)
	assert.Equal(t, 1, h.ack.calls)
}

func TestNilAcknowledger(t *testing.T) {
	net := &fakeConnector{}
	interp := NewInterpreter(settings.NewMemoryStore(), &settings.Settings{}, net, nil, nil, nil)
	interp.Execute(t.Context(), time.Now(), "FLASH_RESET")
	assert.Equal(t, 1, net.disconnects)
}
