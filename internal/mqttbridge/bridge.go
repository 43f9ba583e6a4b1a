// Package mqttbridge mirrors device activity to an MQTT broker and accepts
// control lines on a command topic.
package mqttbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/r0bb10/wallpanel-remote/internal/control"
	"github.com/r0bb10/wallpanel-remote/internal/dispatch"
	"github.com/r0bb10/wallpanel-remote/internal/logfields"
)

// SourceMQTT tags control lines received from the broker.
const SourceMQTT = "mqtt"

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	payloadPressed = "PRESSED"

	publishTimeout       = 5 * time.Second
	connectRetryInterval = 10 * time.Second
	disconnectQuiesce    = 250
)

// Options configures the broker connection.
type Options struct {
	Broker      string
	User        string
	Password    string
	TopicPrefix string
	ClientID    string
}

// Bridge publishes device events and forwards command messages into a
// control queue.
type Bridge struct {
	client mqtt.Client
	prefix string
	lines  *control.Queue
	log    *slog.Logger
}

// New builds a bridge with a paho client. Call Connect to dial the broker.
func New(opts Options, lines *control.Queue, logger *slog.Logger) *Bridge {
	b := &Bridge{prefix: opts.TopicPrefix, lines: lines, log: orDefault(logger)}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetUsername(opts.User)
	co.SetPassword(opts.Password)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(connectRetryInterval)
	co.SetWill(b.AvailabilityTopic(), payloadOffline, 1, true)
	co.SetOnConnectHandler(b.onConnect)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warn("MQTT connection lost", logfields.Error(err))
	})

	b.client = mqtt.NewClient(co)
	return b
}

// NewWithClient wraps an existing client. The caller is responsible for
// invoking the connect hook.
func NewWithClient(client mqtt.Client, prefix string, lines *control.Queue, logger *slog.Logger) *Bridge {
	return &Bridge{client: client, prefix: prefix, lines: lines, log: orDefault(logger)}
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Connect dials the broker and waits up to the publish timeout. The client
// keeps retrying in the background after a timeout.
func (b *Bridge) Connect() error {
	token := b.client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("MQTT connection timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connection failed: %w", err)
	}
	return nil
}

// AvailabilityTopic carries online/offline and the last will.
func (b *Bridge) AvailabilityTopic() string { return b.prefix + "/status" }

// CommandTopic receives control lines.
func (b *Bridge) CommandTopic() string { return b.prefix + "/command" }

func (b *Bridge) connectivityTopic() string   { return b.prefix + "/connectivity" }
func (b *Bridge) dispatchTopic() string       { return b.prefix + "/dispatch" }
func (b *Bridge) inputTopic(ch string) string { return b.prefix + "/input/" + ch }

func (b *Bridge) onConnect(c mqtt.Client) {
	b.log.Info("Connected to MQTT")
	c.Publish(b.AvailabilityTopic(), 1, true, payloadOnline)

	token := c.Subscribe(b.CommandTopic(), 1, b.handleCommand)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		b.log.Error("Failed to subscribe to command topic", slog.String("topic", b.CommandTopic()), logfields.Error(token.Error()))
	}
}

// OnConnect runs the connect hook against c. It is exported for clients
// built with NewWithClient.
func (b *Bridge) OnConnect(c mqtt.Client) { b.onConnect(c) }

func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	if msg.Retained() {
		b.log.Debug("Ignoring retained command", slog.String("topic", msg.Topic()))
		return
	}
	b.lines.OfferText(string(msg.Payload()), SourceMQTT)
}

// PublishConnectivity publishes the connectivity state, retained.
func (b *Bridge) PublishConnectivity(state string) {
	b.publish(b.connectivityTopic(), true, state)
}

// PublishActivation announces a button activation.
func (b *Bridge) PublishActivation(channel string) {
	b.publish(b.inputTopic(channel), false, payloadPressed)
}

// DispatchEvent is the JSON body published for each dispatch.
type DispatchEvent struct {
	RequestID  string  `json:"request_id"`
	Path       string  `json:"path"`
	URL        string  `json:"url,omitempty"`
	Status     int     `json:"status,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
	Skipped    string  `json:"skipped,omitempty"`
}

// NewDispatchEvent converts a dispatch result.
func NewDispatchEvent(r dispatch.Result) DispatchEvent {
	ev := DispatchEvent{
		RequestID:  r.RequestID,
		Path:       r.Path,
		URL:        r.URL,
		Status:     r.Status,
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
		Skipped:    r.Skipped,
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// PublishDispatch publishes a dispatch result as JSON.
func (b *Bridge) PublishDispatch(r dispatch.Result) {
	b.publish(b.dispatchTopic(), false, NewDispatchEvent(r))
}

// publish sends payload without blocking the caller. Strings and byte
// slices are sent as-is; anything else is JSON encoded.
func (b *Bridge) publish(topic string, retained bool, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			b.log.Error("Failed to marshal MQTT payload", slog.String("topic", topic), logfields.Error(err))
			return
		}
	}

	if !b.client.IsConnectionOpen() {
		b.log.Debug("MQTT not connected, dropping publish", slog.String("topic", topic))
		return
	}
	token := b.client.Publish(topic, 0, retained, data)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			b.log.Warn("MQTT publish timed out", slog.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			b.log.Warn("MQTT publish failed", slog.String("topic", topic), logfields.Error(err))
		}
	}()
}

// Close publishes offline and disconnects.
func (b *Bridge) Close() {
	if b.client.IsConnectionOpen() {
		token := b.client.Publish(b.AvailabilityTopic(), 1, true, payloadOffline)
		token.WaitTimeout(publishTimeout)
	}
	b.client.Disconnect(disconnectQuiesce)
}
