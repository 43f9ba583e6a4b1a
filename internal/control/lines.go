// Package control collects control-protocol lines from the serial console,
// stdin and MQTT into one queue that the device loop drains without
// blocking.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/r0bb10/wallpanel-remote/internal/logfields"
)

// DefaultQueueSize bounds the number of pending lines.
const DefaultQueueSize = 32

// maxLineBytes caps a single control line. Longer lines are discarded.
const maxLineBytes = 4 << 10

// Line is a control line with the channel it arrived on.
type Line struct {
	Text   string
	Source string
}

// Queue is a bounded FIFO of control lines. Producers may run on any
// goroutine; Poll is called by the device loop.
type Queue struct {
	ch  chan Line
	log *slog.Logger
}

// NewQueue creates a queue holding up to size lines.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{ch: make(chan Line, size), log: logger}
}

// Poll returns the next line, if one is ready. It never blocks.
func (q *Queue) Poll() (Line, bool) {
	select {
	case l := <-q.ch:
		return l, true
	default:
		return Line{}, false
	}
}

// Push enqueues a line, waiting for room until ctx is done.
func (q *Queue) Push(ctx context.Context, l Line) error {
	select {
	case q.ch <- l:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Offer enqueues a line without waiting. A full queue drops the line.
func (q *Queue) Offer(l Line) bool {
	select {
	case q.ch <- l:
		return true
	default:
		q.log.Warn("Control queue full, line dropped", logfields.Source(l.Source))
		return false
	}
}

// OfferText splits text on newlines and offers each non-empty line.
func (q *Queue) OfferText(text, source string) {
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		q.Offer(Line{Text: l, Source: source})
	}
}

// ReadLines copies lines from r into q until r is exhausted or ctx is done.
// Pushing blocks while the queue is full, so a fast writer is throttled
// rather than dropped. Lines longer than maxLineBytes are skipped whole.
func ReadLines(ctx context.Context, r io.Reader, source string, q *Queue) error {
	br := bufio.NewReaderSize(r, maxLineBytes)
	overlong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !overlong {
				q.log.Warn("Control line too long, discarded", logfields.Source(source))
			}
			overlong = true
			continue
		}
		text := string(chunk)
		if overlong {
			// tail of the discarded line
			text, overlong = "", false
		}
		if strings.TrimSpace(text) != "" {
			if pushErr := q.Push(ctx, Line{Text: text, Source: source}); pushErr != nil {
				return pushErr
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read %s: %w", source, err)
	}
}
