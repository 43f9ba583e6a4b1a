// Package command parses and executes the line-oriented control protocol:
//
//	WIFI_SSID <ssid>
//	WIFI_PASS <password>
//	BASE_URL <url>
//	API_KEY <base64-basic-auth-value>
//	FLASH_RESET
//
// Keywords are case-sensitive. Everything after the first space is the
// value, taken verbatim.
package command

import "strings"

// Protocol keywords.
const (
	KeywordNetworkName   = "WIFI_SSID"
	KeywordNetworkSecret = "WIFI_PASS"
	KeywordBaseURL       = "BASE_URL"
	KeywordCredential    = "API_KEY"
	KeywordFactoryReset  = "FLASH_RESET"
)

// Command is one parsed control line.
type Command interface {
	// Kind is a stable identifier used in logs and metrics.
	Kind() string
}

type (
	SetNetworkName   struct{ Value string }
	SetNetworkSecret struct{ Value string }
	SetBaseURL       struct{ Value string }
	SetCredential    struct{ Value string }
	FactoryReset     struct{}
	// Unknown is a line that matched no keyword.
	Unknown struct{ Line string }
)

func (SetNetworkName) Kind() string   { return "wifi_ssid" }
func (SetNetworkSecret) Kind() string { return "wifi_pass" }
func (SetBaseURL) Kind() string       { return "base_url" }
func (SetCredential) Kind() string    { return "api_key" }
func (FactoryReset) Kind() string     { return "flash_reset" }
func (Unknown) Kind() string          { return "unknown" }

// Parse trims line and maps it to exactly one Command. It returns nil for a
// blank line.
func Parse(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	keyword, value, _ := strings.Cut(line, " ")
	switch keyword {
	case KeywordNetworkName:
		return SetNetworkName{Value: value}
	case KeywordNetworkSecret:
		return SetNetworkSecret{Value: value}
	case KeywordBaseURL:
		return SetBaseURL{Value: value}
	case KeywordCredential:
		return SetCredential{Value: value}
	case KeywordFactoryReset:
		if value == "" {
			return FactoryReset{}
		}
	}
	return Unknown{Line: line}
}
