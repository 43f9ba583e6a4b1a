// Package dispatch sends the outbound API request for a button activation.
package dispatch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/r0bb10/wallpanel-remote/internal/logfields"
	"github.com/r0bb10/wallpanel-remote/internal/metrics"
	"github.com/r0bb10/wallpanel-remote/internal/settings"
)

// StatusTransportError is recorded when no HTTP response was received.
const StatusTransportError = -1

const maxBodyBytes = 4 << 10

// Skip reasons.
const (
	SkipOffline   = "offline"
	SkipNoBaseURL = "no_base_url"
)

var (
	// ErrOffline is reported when a dispatch is attempted while not connected.
	ErrOffline = errors.New("network not connected")
	// ErrNoBaseURL is reported when no base URL is configured.
	ErrNoBaseURL = errors.New("base URL not configured")
)

// Online reports whether the network is connected.
type Online interface {
	Connected() bool
}

// Activity is told when a request starts and ends.
type Activity interface {
	BeginActivity()
	EndActivity()
}

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Dispatcher.
type Options struct {
	// InsecureSkipVerify disables certificate verification for https URLs.
	InsecureSkipVerify bool
	// Plain and Secure override the clients used for http and https URLs.
	Plain  Doer
	Secure Doer

	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// Result describes one dispatch. It is only used for observability.
type Result struct {
	RequestID string
	Path      string
	URL       string
	Status    int
	Body      string
	Duration  time.Duration
	Err       error
	Skipped   string
}

// OK reports whether a 2xx response was received.
func (r Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Dispatcher issues one GET per activation. It does not retry or queue.
type Dispatcher struct {
	online   Online
	current  *settings.Settings
	activity Activity
	plain    Doer
	secure   Doer
	log      *slog.Logger
	rec      metrics.Recorder
}

// New creates a dispatcher reading the base URL and credential from
// current at call time. activity may be nil.
func New(online Online, current *settings.Settings, activity Activity, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Dispatcher{
		online:   online,
		current:  current,
		activity: activity,
		plain:    opts.Plain,
		secure:   opts.Secure,
		log:      opts.Logger,
		rec:      metrics.OrNoop(opts.Recorder),
	}
	if d.plain == nil {
		d.plain = &http.Client{}
	}
	if d.secure == nil {
		d.secure = newSecureClient(opts.InsecureSkipVerify)
	}
	if opts.InsecureSkipVerify {
		d.log.Warn("TLS certificate verification is disabled for https endpoints")
	}
	return d
}

func newSecureClient(insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec // opt-in via http.insecure_skip_verify
	}
	return &http.Client{Transport: transport}
}

// Dispatch sends GET <base URL><path>. It makes no network attempt unless
// the network is connected and a base URL is set.
func (d *Dispatcher) Dispatch(ctx context.Context, path string) Result {
	res := Result{RequestID: uuid.NewString(), Path: path}

	if !d.online.Connected() {
		return d.skip(res, SkipOffline, ErrOffline)
	}
	base := d.current.BaseURL
	if base == "" {
		return d.skip(res, SkipNoBaseURL, ErrNoBaseURL)
	}
	res.URL = base + path

	if d.activity != nil {
		d.activity.BeginActivity()
		defer d.activity.EndActivity()
	}

	start := time.Now()
	res.Status, res.Body, res.Err = d.do(ctx, res.URL)
	res.Duration = time.Since(start)
	d.rec.ObserveDispatch(path, res.Status, res.Duration)

	attrs := []any{
		logfields.RequestID(res.RequestID),
		logfields.URL(res.URL),
		logfields.Status(res.Status),
		logfields.DurationMS(float64(res.Duration.Microseconds()) / 1000),
	}
	switch {
	case res.Err != nil:
		d.log.Error("Request failed", append(attrs, logfields.Error(res.Err))...)
	case !res.OK():
		d.log.Warn("Request rejected", append(attrs, slog.String("body", res.Body))...)
	default:
		d.log.Info("Request sent", append(attrs, slog.String("body", res.Body))...)
	}
	return res
}

func (d *Dispatcher) do(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusTransportError, "", fmt.Errorf("build request: %w", err)
	}
	if cred := d.current.Credential; cred != "" {
		req.Header.Set("Authorization", "Basic "+cred)
	}

	client := d.plain
	if strings.HasPrefix(url, "https://") {
		client = d.secure
	}
	resp, err := client.Do(req)
	if err != nil {
		return StatusTransportError, "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, string(body), fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

func (d *Dispatcher) skip(res Result, reason string, err error) Result {
	res.Skipped = reason
	res.Err = err
	d.rec.IncDispatchSkipped(reason)
	d.log.Warn("Request skipped", logfields.Path(res.Path), logfields.Reason(reason))
	return res
}
