package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tripwire-data/telematics.report/internal/telemetry"
)

func TestMockConnectPublishDisconnect(t *testing.T) {
	m := &Mock{}
	require.NoError(t, m.Connect(context.Background()))
	require.True(t, m.Connected())

	m.Publish(telemetry.Frame{SessionID: "a"})
	m.Publish(telemetry.Frame{SessionID: "b"})
	require.Len(t, m.Frames(), 2)
	require.EqualValues(t, 0, m.Dropped())

	m.Disconnect()
	require.False(t, m.Connected())

	// Publishing while down drops and counts, never buffers.
	m.Publish(telemetry.Frame{SessionID: "c"})
	require.Len(t, m.Frames(), 2)
	require.EqualValues(t, 1, m.Dropped())

	// Disconnect twice is safe.
	m.Disconnect()
}

func TestMockConnectIdempotent(t *testing.T) {
	m := &Mock{}
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, 1, m.Connects())
}

func TestMockConnectFailure(t *testing.T) {
	wantErr := errors.New("broker unreachable")
	m := &Mock{ConnectErr: wantErr}
	err := m.Connect(context.Background())
	require.ErrorIs(t, err, wantErr)
	require.False(t, m.Connected())
}

func TestMQTTPublishWhileUnconnectedDrops(t *testing.T) {
	tr := NewMQTT(Options{BrokerURL: "tcp://127.0.0.1:1883", Topic: "telematics/data"})
	tr.Publish(telemetry.Frame{})
	tr.Publish(telemetry.Frame{})
	require.EqualValues(t, 2, tr.Dropped())
	require.False(t, tr.Connected())
}

func TestMQTTDisconnectWithoutConnect(t *testing.T) {
	tr := NewMQTT(Options{BrokerURL: "tcp://127.0.0.1:1883"})
	tr.Disconnect()
	tr.Disconnect()
}

func TestMQTTConnectRespectsContext(t *testing.T) {
	// Nothing listens on this address; cancellation must unblock Connect.
	tr := NewMQTT(Options{BrokerURL: "tcp://127.0.0.1:1", Topic: "telematics/data"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tr.Connect(ctx)
	require.Error(t, err)
	require.False(t, tr.Connected())
}

func TestMQTTDefaultsQoS(t *testing.T) {
	tr := NewMQTT(Options{BrokerURL: "tcp://127.0.0.1:1883"})
	require.EqualValues(t, 1, tr.opts.QoS)
}

func TestDropCounter(t *testing.T) {
	var c DropCounter
	require.EqualValues(t, 0, c.Count())
	c.Add()
	c.Add()
	require.EqualValues(t, 2, c.Count())
}
