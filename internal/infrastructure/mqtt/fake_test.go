package mqtt

import (
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
)

// fakeToken is an already-completed paho token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakePublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// fakePaho implements pahomqtt.Client without a network.
type fakePaho struct {
	mu           sync.Mutex
	opts         *pahomqtt.ClientOptions
	connected    bool
	connectErrs  []error // consumed one per Connect; exhausted means success
	connectCalls int
	subscribeErr error
	published    []fakePublish
	subscribed   []string
	handlers     map[string]pahomqtt.MessageHandler
	disconnects  int
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	f.connectCalls++
	var err error
	if len(f.connectErrs) > 0 {
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	if err == nil {
		f.connected = true
	}
	onConnect := f.opts.OnConnect
	f.mu.Unlock()

	if err == nil && onConnect != nil {
		onConnect(f)
	}
	return newFakeToken(err)
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	f.published = append(f.published, fakePublish{Topic: topic, Payload: body, QoS: qos, Retained: retained})
	return newFakeToken(nil)
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	f.handlers[topic] = callback
	return newFakeToken(f.subscribeErr)
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, callback)
	}
	return newFakeToken(nil)
}

func (f *fakePaho) Unsubscribe(...string) pahomqtt.Token { return newFakeToken(nil) }

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver simulates an inbound message on topic.
func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()
	if handler != nil {
		handler(f, &fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) getPublished() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakePublish(nil), f.published...)
}

func (f *fakePaho) getSubscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func (f *fakePaho) resetSubscribed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = nil
}

func (f *fakePaho) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakePaho) getDisconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// testConfig returns an MQTT configuration with fast retries.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Address:        "tcp://127.0.0.1:1883",
			ClientIDPrefix: "bhyve-test",
		},
		KeepAlive: 10,
		Timeout:   1,
		Reconnect: config.MQTTReconnectConfig{
			PeriodMS:   1,
			MaxRetries: 3,
		},
	}
}

// newTestClient builds a Client backed by a fakePaho.
func newTestClient(t *testing.T, cfg config.MQTTConfig, connectErrs ...error) (*Client, *fakePaho) {
	t.Helper()

	fake := &fakePaho{
		connectErrs: connectErrs,
		handlers:    make(map[string]pahomqtt.MessageHandler),
	}
	orig := newPahoClient
	newPahoClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		fake.opts = o
		return fake
	}
	t.Cleanup(func() { newPahoClient = orig })

	c, err := New(cfg, "bhyve/online")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, fake
}
