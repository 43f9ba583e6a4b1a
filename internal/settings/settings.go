// Package settings persists the runtime device settings: the Wi-Fi
// credentials and the remote API endpoint. The values are written only by
// control commands.
package settings

import (
	"context"
	"strings"
)

// Key names within a namespace.
const (
	KeyNetworkName   = "ssid"
	KeyNetworkSecret = "pass"
	KeyBaseURL       = "base_url"
	KeyCredential    = "api_key"
)

// DefaultNamespace groups the keys when none is configured.
const DefaultNamespace = "wallpanel"

// Settings holds the four runtime values. An empty string means unset.
type Settings struct {
	NetworkName   string
	NetworkSecret string
	BaseURL       string
	Credential    string
}

// Store is durable storage for Settings. Save always writes the full
// snapshot; there is no single-field update.
type Store interface {
	// Load returns a complete Settings, with "" for any missing key. On a
	// backend error the zero Settings is returned together with the error.
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	Reset(ctx context.Context) error
	Close() error
}

// HasNetworkCredentials reports whether both Wi-Fi values are set.
func (s Settings) HasNetworkCredentials() bool {
	return s.NetworkName != "" && s.NetworkSecret != ""
}

// Redacted masks the secret and the credential for display.
func (s Settings) Redacted() Settings {
	s.NetworkSecret = mask(s.NetworkSecret)
	s.Credential = mask(s.Credential)
	return s
}

func (s Settings) toMap() map[string]string {
	return map[string]string{
		KeyNetworkName:   s.NetworkName,
		KeyNetworkSecret: s.NetworkSecret,
		KeyBaseURL:       s.BaseURL,
		KeyCredential:    s.Credential,
	}
}

func fromMap(m map[string]string) Settings {
	return Settings{
		NetworkName:   m[KeyNetworkName],
		NetworkSecret: m[KeyNetworkSecret],
		BaseURL:       m[KeyBaseURL],
		Credential:    m[KeyCredential],
	}
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}
