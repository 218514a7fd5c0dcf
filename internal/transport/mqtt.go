package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tripwire-data/telematics.report/internal/monitoring"
	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

// Options configures an MQTT transport.
type Options struct {
	// BrokerURL selects the endpoint and, by scheme, the channel security:
	// tcp:// is plaintext, ssl:///tls:///mqtts:// negotiate TLS.
	BrokerURL string
	// Username and Password are optional; both are omitted from the
	// handshake when Username is blank.
	Username string
	Password string
	ClientID string
	// Topic is the single fixed topic all frames are published to.
	Topic string
	// QoS defaults to 1 (at-least-once, broker-acknowledged).
	QoS byte
}

// MQTT is the production Transport, backed by an eclipse/paho client. The
// paho layer handles automatic low-level reconnect after an initial
// successful connect; reconnect attempts are logged through the handlers
// below and never surface as errors to the pipeline.
type MQTT struct {
	opts  Options
	drops DropCounter

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTT returns an unconnected transport for the given options.
func NewMQTT(opts Options) *MQTT {
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	return &MQTT{opts: opts}
}

// Connect dials the broker and blocks until ready, failure, or context
// cancellation. Already connected is a no-op.
func (t *MQTT) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.client != nil && t.client.IsConnected() {
		t.mu.Unlock()
		return nil
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(t.opts.BrokerURL)
	co.SetClientID(t.opts.ClientID)
	if t.opts.Username != "" {
		co.SetUsername(t.opts.Username)
		co.SetPassword(t.opts.Password)
	}

	// Reconnect on transient loss is paho's job; the initial connect is not
	// retried here, the session decides what a failed start means.
	co.SetAutoReconnect(true)
	co.SetMaxReconnectInterval(time.Minute)
	co.SetConnectRetry(false)
	co.SetOrderMatters(false)

	co.SetOnConnectHandler(func(mqtt.Client) {
		monitoring.Logf("transport: connected to %s", t.opts.BrokerURL)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("transport: connection lost: %v (reconnecting)", err)
	})

	client := mqtt.NewClient(co)
	t.client = client
	t.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			t.mu.Lock()
			t.client = nil
			t.mu.Unlock()
			return fmt.Errorf("failed to connect to broker %s: %w", t.opts.BrokerURL, err)
		}
		return nil
	case <-ctx.Done():
		client.Disconnect(0)
		t.mu.Lock()
		t.client = nil
		t.mu.Unlock()
		return ctx.Err()
	}
}

// Publish serialises the frame and hands it to the broker without waiting
// for the acknowledgment. Disconnected publishes are dropped and counted.
func (t *MQTT) Publish(f telemetry.Frame) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		t.drops.Add()
		return
	}

	payload, err := json.Marshal(f)
	if err != nil {
		monitoring.Logf("transport: failed to marshal frame: %v", err)
		t.drops.Add()
		return
	}
	// Fire-and-forget: QoS handles the broker handshake in the background.
	client.Publish(t.opts.Topic, t.opts.QoS, false, payload)
}

// Disconnect releases the connection, allowing a short quiesce for in-flight
// publishes. Safe to call when never connected or already disconnected.
func (t *MQTT) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}

// Connected reports whether the broker link is currently open.
func (t *MQTT) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.IsConnectionOpen()
}

// Dropped returns the count of frames that never reached the broker.
func (t *MQTT) Dropped() int64 { return t.drops.Count() }
