package control

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPollEmpty(t *testing.T) {
	q := NewQueue(4, discard())
	_, ok := q.Poll()
	assert.False(t, ok)
}

func TestFIFO(t *testing.T) {
	q := NewQueue(4, discard())
	require.True(t, q.Offer(Line{Text: "A", Source: "mqtt"}))
	require.NoError(t, q.Push(t.Context(), Line{Text: "B", Source: "serial"}))

	l, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, "A", l.Text)
	l, ok = q.Poll()
	require.True(t, ok)
	assert.Equal(t, Line{Text: "B", Source: "serial"}, l)
}

func TestOfferDropsWhenFull(t *testing.T) {
	var logs bytes.Buffer
	q := NewQueue(1, slog.New(slog.NewTextHandler(&logs, nil)))
	assert.True(t, q.Offer(Line{Text: "first"}))
	assert.False(t, q.Offer(Line{Text: "second", Source: "mqtt"}))
	assert.Contains(t, logs.String(), "Control queue full")

	l, _ := q.Poll()
	assert.Equal(t, "first", l.Text)
}

func TestPushHonoursContext(t *testing.T) {
	q := NewQueue(1, discard())
	require.NoError(t, q.Push(t.Context(), Line{Text: "x"}))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := q.Push(ctx, Line{Text: "y"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOfferTextSplitsLines(t *testing.T) {
	q := NewQueue(8, discard())
	q.OfferText("WIFI_SSID home\n\nWIFI_PASS s\n", "mqtt")

	var got []string
	for {
		l, ok := q.Poll()
		if !ok {
			break
		}
		assert.Equal(t, "mqtt", l.Source)
		got = append(got, l.Text)
	}
	assert.Equal(t, []string{"WIFI_SSID home", "WIFI_PASS s"}, got)
}

func TestReadLines(t *testing.T) {
	q := NewQueue(8, discard())
	r := strings.NewReader("BASE_URL http://10.0.0.5\r\n\nAPI_KEY abc\nFLASH_RESET")

	require.NoError(t, ReadLines(t.Context(), r, "serial", q))

	var got []string
	for {
		l, ok := q.Poll()
		if !ok {
			break
		}
		got = append(got, l.Text)
	}
	assert.Equal(t, []string{"BASE_URL http://10.0.0.5\r\n", "API_KEY abc\n", "FLASH_RESET"}, got)
}

func TestReadLinesSkipsOverlongLine(t *testing.T) {
	var logs bytes.Buffer
	q := NewQueue(8, slog.New(slog.NewTextHandler(&logs, nil)))
	input := "BASE_URL http://" + strings.Repeat("a", 3*maxLineBytes) + "\nAPI_KEY abc\n" +
		strings.Repeat("b", 2*maxLineBytes)

	require.NoError(t, ReadLines(t.Context(), strings.NewReader(input), "serial", q))

	l, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, "API_KEY abc\n", l.Text)
	_, ok = q.Poll()
	assert.False(t, ok, "unterminated overlong tail is dropped")
	assert.Equal(t, 2, strings.Count(logs.String(), "Control line too long"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("port unplugged") }

func TestReadLinesError(t *testing.T) {
	err := ReadLines(t.Context(), failingReader{}, "serial", NewQueue(1, discard()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read serial")
}

func TestReadLinesCanceledWhileFull(t *testing.T) {
	q := NewQueue(1, discard())
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- ReadLines(ctx, strings.NewReader("A\nB\nC\n"), "serial", q) }()

	// The reader blocks on the second line until canceled.
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestResolvePort(t *testing.T) {
	orig := portLister
	t.Cleanup(func() { portLister = orig })

	name, err := ResolvePort("/dev/ttyAMA0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", name)

	portLister = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true},
		}, nil
	}
	name, err = ResolvePort(PortAuto)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", name)

	portLister = func() ([]*enumerator.PortDetails, error) { return nil, nil }
	_, err = ResolvePort(PortAuto)
	assert.ErrorIs(t, err, ErrNoPort)
}

func TestOpenStdin(t *testing.T) {
	rc, name, err := Open("", 115200)
	require.NoError(t, err)
	assert.Equal(t, PortStdin, name)
	assert.NoError(t, rc.Close())
}
