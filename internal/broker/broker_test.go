package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/metrics"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectToken mqtt.Token
	publishToken mqtt.Token
	published    []published
	subscribed   []string
	disconnected bool
}

func (f *fakeClient) Connect() mqtt.Token { return f.connectToken }

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakeClient) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, payload: payload.([]byte)})
	if f.publishToken != nil {
		return f.publishToken
	}
	return completedToken(nil)
}

func (f *fakeClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return completedToken(nil)
}

func newTestConnection(t *testing.T, cl *fakeClient, queue int) (*Connection, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newConnection(cl, Options{
		ConnectTimeout: 50 * time.Millisecond,
		PublishTimeout: 50 * time.Millisecond,
		QueueSize:      queue,
	}, logger, m)
	return c, m
}

func TestConnectTimeoutFallsBackToBackgroundRetry(t *testing.T) {
	cl := &fakeClient{connectToken: pendingToken()}
	c, _ := newTestConnection(t, cl, 4)

	start := time.Now()
	if err := c.Connect(); err != nil {
		t.Fatalf("unreachable broker must not fail startup: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Connect did not respect the timeout")
	}
}

func TestConnectSurfacesImmediateError(t *testing.T) {
	cl := &fakeClient{connectToken: completedToken(errors.New("not authorised"))}
	c, _ := newTestConnection(t, cl, 4)

	if err := c.Connect(); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestOnConnectSubscribesEveryTime(t *testing.T) {
	cl := &fakeClient{connected: true}
	c, m := newTestConnection(t, cl, 4)
	c.Subscribe("esp32/rezky/data", 0, HandlerFunc(func(context.Context, []byte) error { return nil }))

	c.onConnect()
	c.onConnect()

	if len(cl.subscribed) != 2 || cl.subscribed[0] != "esp32/rezky/data" {
		t.Fatalf("expected resubscribe on every connect, got %v", cl.subscribed)
	}
	if got := testutil.ToFloat64(m.BrokerConnected); got != 1 {
		t.Fatalf("broker_connected = %v", got)
	}
}

func TestPublishWhenDisconnected(t *testing.T) {
	cl := &fakeClient{connected: false}
	c, _ := newTestConnection(t, cl, 4)

	err := c.Publish(context.Background(), "esp32/rezky/relay", []byte(`{"state":"ON"}`))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(cl.published) != 0 {
		t.Fatalf("nothing should be published while disconnected")
	}
}

func TestPublishReportsTokenErrorAndTimeout(t *testing.T) {
	cl := &fakeClient{connected: true, publishToken: completedToken(errors.New("write: broken pipe"))}
	c, _ := newTestConnection(t, cl, 4)

	if err := c.Publish(context.Background(), "t", []byte("x")); err == nil {
		t.Fatalf("expected token error")
	}

	cl.publishToken = pendingToken()
	if err := c.Publish(context.Background(), "t", []byte("x")); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestPublishSuccess(t *testing.T) {
	cl := &fakeClient{connected: true}
	c, _ := newTestConnection(t, cl, 4)

	if err := c.Publish(context.Background(), "esp32/rezky/relay", []byte(`{"state":"OFF"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(cl.published) != 1 || string(cl.published[0].payload) != `{"state":"OFF"}` {
		t.Fatalf("unexpected publishes %+v", cl.published)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	cl := &fakeClient{}
	c, m := newTestConnection(t, cl, 2)

	for i := 0; i < 2; i++ {
		if !c.enqueue("t", []byte("{}")) {
			t.Fatalf("message %d should fit in the queue", i)
		}
	}
	if c.enqueue("t", []byte("{}")) {
		t.Fatalf("third message should be dropped")
	}
	if got := testutil.ToFloat64(m.MessagesHandled.WithLabelValues(metrics.OutcomeQueueOverflow)); got != 1 {
		t.Fatalf("overflow counter = %v", got)
	}
	if got := testutil.ToFloat64(m.MessagesReceived); got != 3 {
		t.Fatalf("received counter = %v", got)
	}
}

func TestRunSurvivesHandlerErrorsAndPanics(t *testing.T) {
	cl := &fakeClient{}
	c, _ := newTestConnection(t, cl, 8)

	var (
		mu   sync.Mutex
		seen []string
	)
	handled := make(chan struct{}, 3)
	c.Subscribe("t", 0, HandlerFunc(func(_ context.Context, payload []byte) error {
		mu.Lock()
		seen = append(seen, string(payload))
		mu.Unlock()
		defer func() { handled <- struct{}{} }()
		switch string(payload) {
		case "boom":
			panic("handler bug")
		case "bad":
			return errors.New("decode failed")
		}
		return nil
	}))

	c.enqueue("t", []byte("boom"))
	c.enqueue("t", []byte("bad"))
	c.enqueue("t", []byte("ok"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-handled:
		case <-time.After(time.Second):
			t.Fatalf("receive loop stopped after %d messages", i)
		}
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != "boom" || seen[2] != "ok" {
		t.Fatalf("messages handled out of order or lost: %v", seen)
	}
}

func TestForwardSkipsWhenDisconnected(t *testing.T) {
	cl := &fakeClient{}
	c, _ := newTestConnection(t, cl, 1)

	c.Forward("logs/x", []byte("line"))
	cl.connected = true
	c.Forward("logs/x", []byte("line"))

	if len(cl.published) != 1 {
		t.Fatalf("expected 1 forwarded line, got %d", len(cl.published))
	}
}

func TestCloseDisconnects(t *testing.T) {
	cl := &fakeClient{connected: true}
	c, _ := newTestConnection(t, cl, 1)
	c.Close()
	if !cl.disconnected {
		t.Fatalf("Close must disconnect the client")
	}
}
