package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/billchurch/bhyve-mqtt/internal/orbit"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// LastPublished returns the most recent publish to topic.
func (m *MockMQTTClient) LastPublished(topic string) (mockPublish, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].Topic == topic {
			return m.published[i], true
		}
	}
	return mockPublish{}, false
}

func (m *MockMQTTClient) GetSubscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		out = append(out, s.Topic)
	}
	return out
}

// SubscriptionQoS returns the QoS of every subscribe call, keyed by topic.
func (m *MockMQTTClient) SubscriptionQoS() map[string]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]byte, len(m.subscriptions))
	for _, s := range m.subscriptions {
		out[s.Topic] = s.QoS
	}
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage simulates receiving an MQTT message on a topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
	return ok
}

// MockCloud implements CloudClient for testing.
type MockCloud struct {
	mu            sync.Mutex
	authenticated bool
	streamOpen    bool
	devices       []orbit.Device
	authErr       error
	listErr       error
	openErrs      []error // consumed one per OpenStream
	sendErr       error
	sendPanic     bool
	sent          []orbit.ChangeModeCommand
	authCalls     int
	listCalls     int
	openCalls     int
	handler       orbit.EventHandler
}

func NewMockCloud(devices []orbit.Device) *MockCloud {
	return &MockCloud{devices: devices}
}

func (m *MockCloud) Authenticate(_ context.Context, email, password string) (orbit.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authCalls++
	if m.authErr != nil {
		return orbit.Session{}, m.authErr
	}
	m.authenticated = true
	return orbit.Session{Token: "tok", UserID: "u-1"}, nil
}

func (m *MockCloud) ListDevices(context.Context) ([]orbit.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.devices, nil
}

func (m *MockCloud) OpenStream(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	if len(m.openErrs) > 0 {
		err := m.openErrs[0]
		m.openErrs = m.openErrs[1:]
		if err != nil {
			return err
		}
	}
	m.streamOpen = true
	return nil
}

func (m *MockCloud) SendCommand(cmd orbit.ChangeModeCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendPanic {
		panic("send exploded")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, cmd)
	return nil
}

func (m *MockCloud) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

func (m *MockCloud) StreamOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamOpen
}

func (m *MockCloud) State() orbit.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.streamOpen:
		return orbit.StateStreamOpen
	case m.authenticated:
		return orbit.StateAuthenticated
	default:
		return orbit.StateUnauthenticated
	}
}

func (m *MockCloud) SetEventHandler(handler orbit.EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Emit delivers ev as if it came from the cloud.
func (m *MockCloud) Emit(ev orbit.Event) {
	m.mu.Lock()
	handler := m.handler
	if ev.Kind == orbit.EventStreamClosed {
		m.streamOpen = false
	}
	m.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

func (m *MockCloud) setAuthErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authErr = err
}

func (m *MockCloud) setListErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// dropSession forgets the session, as a rejected token does.
func (m *MockCloud) dropSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authenticated = false
}

func (m *MockCloud) calls() (auth, list, open int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authCalls, m.listCalls, m.openCalls
}

func (m *MockCloud) GetSent() []orbit.ChangeModeCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orbit.ChangeModeCommand(nil), m.sent...)
}

// MockRecorder implements EventRecorder with testify/mock.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordZoneCommand(deviceID string, station int, on bool, runTime float64, at time.Time) {
	m.Called(deviceID, station, on, runTime, at)
}

func (m *MockRecorder) RecordStreamEvent(deviceID, event string, at time.Time) {
	m.Called(deviceID, event, at)
}

// decodeDevices builds devices the way the cloud client does, so Raw is set.
func decodeDevices(t *testing.T, doc string) []orbit.Device {
	t.Helper()
	var devices []orbit.Device
	if err := json.Unmarshal([]byte(doc), &devices); err != nil {
		t.Fatalf("decoding device fixture: %v", err)
	}
	return devices
}
