// Package broker owns the MQTT session: connect with background retry,
// (re)subscribe to the telemetry topic, queue inbound messages for a single
// receive loop, and publish relay commands.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/metrics"
)

// ErrNotConnected is returned by Publish while the session is down.
var ErrNotConnected = errors.New("mqtt broker not connected")

// Handler processes one inbound payload. Returned errors are logged, never retried.
type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte) error

func (f HandlerFunc) Handle(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Options configures the session.
type Options struct {
	Broker               string
	ClientID             string
	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	MaxReconnectInterval time.Duration
	PublishTimeout       time.Duration
	QueueSize            int
}

// client is the part of mqtt.Client the connection uses.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

type message struct {
	topic   string
	payload []byte
}

type subscription struct {
	topic   string
	qos     byte
	handler Handler
}

// Connection is one MQTT session plus the inbound queue.
type Connection struct {
	client         client
	logger         *slog.Logger
	metrics        *metrics.Metrics
	connectTimeout time.Duration
	publishTimeout time.Duration
	queue          chan message

	mu  sync.RWMutex
	sub *subscription
}

// New builds the paho client. Nothing touches the network until Connect.
func New(opts Options, logger *slog.Logger, m *metrics.Metrics) *Connection {
	c := newConnection(nil, opts, logger, m)

	o := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetKeepAlive(opts.KeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(opts.MaxReconnectInterval).
		SetConnectTimeout(opts.ConnectTimeout)

	// With a clean session the broker forgets subscriptions on disconnect,
	// so they are issued again on every (re)connect.
	o.SetOnConnectHandler(func(mqtt.Client) { c.onConnect() })
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.BrokerConnected.Set(0)
		logger.Warn("MQTT connection lost, reconnecting", "error", err)
	})
	o.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Info("Reconnecting to MQTT broker", "broker", opts.Broker)
	})

	c.client = mqtt.NewClient(o)
	return c
}

func newConnection(cl client, opts Options, logger *slog.Logger, m *metrics.Metrics) *Connection {
	size := opts.QueueSize
	if size < 1 {
		size = 1
	}
	return &Connection{
		client:         cl,
		logger:         logger,
		metrics:        m,
		connectTimeout: opts.ConnectTimeout,
		publishTimeout: opts.PublishTimeout,
		queue:          make(chan message, size),
	}
}

// Subscribe registers the single inbound handler. Call it before Connect;
// the subscription itself is sent from the on-connect hook.
func (c *Connection) Subscribe(topic string, qos byte, h Handler) {
	c.mu.Lock()
	c.sub = &subscription{topic: topic, qos: qos, handler: h}
	c.mu.Unlock()
}

// Connect starts the session and waits at most ConnectTimeout for it.
// A broker that is not reachable yet is not an error: paho keeps retrying
// in the background and the service runs on cached values meanwhile.
func (c *Connection) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.connectTimeout) {
		c.logger.Warn("MQTT broker not reachable yet, retrying in background", "timeout", c.connectTimeout)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Connected reports whether the session is currently up.
func (c *Connection) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends payload with QoS 0. There is no acknowledgement from the
// device; an error only means the message did not leave this process.
func (c *Connection) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 0, false, payload)

	timer := time.NewTimer(c.publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish to %s: %w", topic, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("mqtt publish to %s: timed out after %s", topic, c.publishTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forward publishes without waiting and without reporting errors. It is
// meant for log mirroring, where a lost line is acceptable.
func (c *Connection) Forward(topic string, payload []byte) {
	if c.client.IsConnectionOpen() {
		c.client.Publish(topic, 0, false, payload)
	}
}

// Run is the receive loop. It handles queued messages one at a time until
// ctx is cancelled. A failing or panicking handler only loses its message.
func (c *Connection) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.queue:
			c.metrics.QueueDepth.Set(float64(len(c.queue)))
			c.dispatch(ctx, msg)
		}
	}
}

// Close disconnects, giving in-flight work 250 ms.
func (c *Connection) Close() {
	c.client.Disconnect(250)
	c.metrics.BrokerConnected.Set(0)
}

func (c *Connection) onConnect() {
	c.metrics.BrokerConnected.Set(1)

	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()
	if sub == nil {
		c.logger.Info("Connected to MQTT broker")
		return
	}

	// Runs on a paho goroutine; waiting for the SUBACK here is allowed.
	token := c.client.Subscribe(sub.topic, sub.qos, c.onMessage)
	if token.WaitTimeout(c.connectTimeout) && token.Error() == nil {
		c.logger.Info("Connected to MQTT broker, subscribed", "topic", sub.topic)
		return
	}
	c.logger.Error("Subscribe failed", "topic", sub.topic, "error", token.Error())
}

func (c *Connection) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.enqueue(msg.Topic(), msg.Payload())
}

// enqueue never blocks the paho router. When the queue is full the newest
// message is dropped: delivery is at-most-once anyway.
func (c *Connection) enqueue(topic string, payload []byte) bool {
	c.metrics.MessagesReceived.Inc()
	select {
	case c.queue <- message{topic: topic, payload: payload}:
		c.metrics.QueueDepth.Set(float64(len(c.queue)))
		return true
	default:
		c.metrics.MessagesHandled.WithLabelValues(metrics.OutcomeQueueOverflow).Inc()
		c.logger.Warn("Ingest queue full, message dropped", "topic", topic, "capacity", cap(c.queue))
		return false
	}
}

func (c *Connection) dispatch(ctx context.Context, msg message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Message handler panicked", "topic", msg.topic, "panic", r)
		}
	}()

	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()
	if sub == nil {
		return
	}
	if err := sub.handler.Handle(ctx, msg.payload); err != nil {
		c.logger.Warn("Message handling failed", "topic", msg.topic, "error", err)
		return
	}
	c.logger.Debug("Message processed", "topic", msg.topic)
}
