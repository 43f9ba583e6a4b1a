package connectivity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	dropTimeout  = 5 * time.Second
	probeTimeout = 5 * time.Second

	// DefaultProfile names the NetworkManager connection created by joins.
	DefaultProfile = "wallpanel-remote"

	// nmDeviceActivated is NM_DEVICE_STATE_ACTIVATED.
	nmDeviceActivated = 100
)

// commandRunner runs an external command and returns its output. It is
// replaced in tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(out))
	}
	return out, nil
}

// NmcliLink joins Wi-Fi networks through NetworkManager. Begin runs the
// join in the background under a dedicated connection profile. Once joined,
// each Up call starts a device state check and reports the latest result.
type NmcliLink struct {
	iface    string
	profile  string
	run      commandRunner
	lookPath func(string) (string, error)

	mu      sync.Mutex
	gen     int
	joined  bool
	up      bool
	probing bool
	cancel  context.CancelFunc
	err     error
}

// NewNmcliLink creates a link bound to a wireless interface.
func NewNmcliLink(iface string) *NmcliLink {
	return &NmcliLink{iface: iface, profile: DefaultProfile, run: runCommand, lookPath: exec.LookPath}
}

func (l *NmcliLink) Begin(ssid, secret string) error {
	if _, err := l.lookPath("nmcli"); err != nil {
		return fmt.Errorf("nmcli not available: %w", err)
	}

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	l.joined, l.up = false, false
	l.err = nil
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	go func() {
		// A stale profile may not exist.
		_, _ = l.run(ctx, "nmcli", "connection", "delete", "id", l.profile)
		_, err := l.run(ctx, "nmcli", "--wait", "30", "device", "wifi", "connect", ssid,
			"password", secret, "ifname", l.iface, "name", l.profile)
		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.gen {
			return // superseded or dropped
		}
		l.joined = err == nil
		l.up = err == nil
		l.err = err
	}()
	return nil
}

// Up reports the last observed link state. After a successful join it also
// starts a device state check unless one is already running, so callers
// polling at a fixed interval see a lost link one interval later.
func (l *NmcliLink) Up() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.joined && !l.probing {
		l.probing = true
		go l.probe(l.gen)
	}
	return l.up
}

func (l *NmcliLink) probe(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	out, err := l.run(ctx, "nmcli", "-t", "-f", "GENERAL.STATE", "device", "show", l.iface)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.probing = false
	if gen != l.gen {
		return
	}
	if err != nil {
		l.up, l.err = false, err
		return
	}
	l.up = deviceActivated(out)
}

// deviceActivated parses terse output such as "GENERAL.STATE:100 (connected)".
func deviceActivated(out []byte) bool {
	_, value, ok := strings.Cut(strings.TrimSpace(string(out)), ":")
	if !ok {
		return false
	}
	code, _, _ := strings.Cut(value, " ")
	n, err := strconv.Atoi(code)
	return err == nil && n == nmDeviceActivated
}

// Err returns the failure of the latest join or state check, if any.
func (l *NmcliLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Drop abandons any join in progress, disconnects the interface and deletes
// the connection profile so NetworkManager does not rejoin on its own.
func (l *NmcliLink) Drop() error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
	l.joined, l.up = false, false
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()
	var errs []error
	if _, err := l.run(ctx, "nmcli", "device", "disconnect", l.iface); err != nil {
		errs = append(errs, err)
	}
	if _, err := l.run(ctx, "nmcli", "connection", "delete", "id", l.profile); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StaticLink is always up once begun. It suits hosts whose network is
// managed elsewhere, such as wired development machines.
type StaticLink struct {
	mu sync.Mutex
	up bool
}

func (l *StaticLink) Begin(string, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.up = true
	return nil
}

func (l *StaticLink) Up() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

func (l *StaticLink) Drop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.up = false
	return nil
}
