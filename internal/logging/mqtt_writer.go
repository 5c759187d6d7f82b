package logging

import (
	"sync/atomic"
)

// Forwarder publishes a payload fire-and-forget (broker.Connection does).
type Forwarder interface {
	Forward(topic string, payload []byte)
}

// MqttLogWriter implements io.Writer; every log line is published to an MQTT
// topic. The logger has to exist before the MQTT client does, so the
// forwarder is attached later. Lines written before Attach only reach stdout.
type MqttLogWriter struct {
	topic string
	fwd   atomic.Pointer[forwarderRef]
}

type forwarderRef struct {
	f Forwarder
}

// NewMqttLogWriter creates a writer publishing to topic (e.g. "logs/telemetry-bridge").
func NewMqttLogWriter(topic string) *MqttLogWriter {
	return &MqttLogWriter{topic: topic}
}

// Attach starts forwarding lines to f.
func (w *MqttLogWriter) Attach(f Forwarder) {
	w.fwd.Store(&forwarderRef{f: f})
}

// Write never fails and never waits for the broker.
func (w *MqttLogWriter) Write(p []byte) (int, error) {
	ref := w.fwd.Load()
	if ref == nil {
		return len(p), nil
	}

	// slog reuses its buffer after Write returns.
	payload := make([]byte, len(p))
	copy(payload, p)

	ref.f.Forward(w.topic, payload)
	return len(p), nil
}
