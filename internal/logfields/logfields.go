// Package logfields holds the structured log keys shared across packages.
package logfields

import "log/slog"

// Canonical log field names shared by every package.
const (
	KeyChannel   = "channel"
	KeyPath      = "path"
	KeyURL       = "url"
	KeyStatus    = "status"
	KeyAttempt   = "attempt"
	KeyCommand   = "command"
	KeyRequestID = "request_id"
	KeyHeldMS    = "held_ms"
	KeyDuration  = "duration_ms"
	KeyReason    = "reason"
	KeySource    = "source"
	KeyError     = "error"
)

func Channel(name string) slog.Attr   { return slog.String(KeyChannel, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Command(kind string) slog.Attr   { return slog.String(KeyCommand, kind) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func HeldMS(ms int64) slog.Attr       { return slog.Int64(KeyHeldMS, ms) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDuration, ms) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
