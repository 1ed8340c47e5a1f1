package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/logging"
	"github.com/billchurch/bhyve-mqtt/internal/orbit"
)

// Stream reconnect backoff.
const (
	streamRetryInitial = time.Second
	streamRetryMax     = time.Minute
)

// Bridge translates between the bus and the B-hyve cloud.
//
// It handles:
//   - Logging in to the cloud whenever the bus (re)connects
//   - Publishing device, status and zone topics after each discovery
//   - Turning zone-set messages into change_mode stream commands
//   - Republishing cloud stream frames to the bus
//   - Reopening the cloud stream after it drops
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	cloud    CloudClient
	topics   Topics
	router   *Router
	email    string
	password string
	qos      byte

	metrics          *Metrics
	recorder         EventRecorder
	now              func() time.Time
	newStreamBackOff func() backoff.BackOff

	// connectMu serializes bus-connect handling; discoverMu serializes discovery.
	connectMu  sync.Mutex
	discoverMu sync.Mutex

	// Latest device snapshot, replaced wholesale by each discovery.
	devices   []orbit.Device
	devicesMu sync.RWMutex

	streamRetrying atomic.Bool

	// Lifecycle for background work.
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	lifeMu    sync.Mutex
	stopped   bool
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the bus side of the bridge.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic. Repeated calls for a topic
	// must be harmless.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// CloudClient is the cloud side of the bridge; *orbit.Client satisfies it.
type CloudClient interface {
	Authenticate(ctx context.Context, email, password string) (orbit.Session, error)
	ListDevices(ctx context.Context) ([]orbit.Device, error)
	OpenStream(ctx context.Context) error
	SendCommand(cmd orbit.ChangeModeCommand) error
	IsAuthenticated() bool
	StreamOpen() bool
	State() orbit.State
	SetEventHandler(handler orbit.EventHandler)
}

var _ CloudClient = (*orbit.Client)(nil)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds the dependencies for a bridge.
type Options struct {
	// MQTT is the bus client.
	MQTT MQTTClient

	// Cloud is the B-hyve client. The bridge installs its event handler.
	Cloud CloudClient

	// TopicPrefix is the root of every topic, e.g. "bhyve".
	TopicPrefix string

	// Email and Password are the cloud account credentials.
	Email    string
	Password string

	// QoS is used for every publish and subscription (0, 1 or 2).
	QoS byte

	// Metrics is optional; unregistered counters are used if nil.
	Metrics *Metrics

	// Recorder is optional; events are not recorded if nil.
	Recorder EventRecorder

	// Logger is optional.
	Logger Logger
}

// New creates a bridge. Wire HandleBusConnect to the bus client's connect
// callback before connecting the bus.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Cloud == nil {
		return nil, fmt.Errorf("cloud client is required")
	}
	if opts.TopicPrefix == "" {
		return nil, fmt.Errorf("topic prefix is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", opts.QoS)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:             opts.MQTT,
		cloud:            opts.Cloud,
		topics:           NewTopics(opts.TopicPrefix),
		router:           NewRouter(opts.TopicPrefix),
		email:            opts.Email,
		password:         opts.Password,
		qos:              opts.QoS,
		metrics:          opts.Metrics,
		recorder:         opts.Recorder,
		now:              time.Now,
		newStreamBackOff: defaultStreamBackOff,
		ctx:              ctx,
		ctxCancel:        cancel,
		logger:           opts.Logger,
	}
	if b.metrics == nil {
		b.metrics = NewMetrics(nil)
	}
	if b.recorder == nil {
		b.recorder = nopRecorder{}
	}

	b.cloud.SetEventHandler(b.handleCloudEvent)
	return b, nil
}

func defaultStreamBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = streamRetryInitial
	bo.MaxInterval = streamRetryMax
	bo.MaxElapsedTime = 0
	return bo
}

// Topics returns the topic builder in use.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// HandleBusConnect is the bus client's connect callback. It returns at
// once; login and discovery run on a bridge goroutine.
func (b *Bridge) HandleBusConnect() {
	b.spawn("bus-connect", b.onBusConnect)
}

// Stop cancels background work and waits for it to finish.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.lifeMu.Lock()
		b.stopped = true
		b.lifeMu.Unlock()

		b.ctxCancel()
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// spawn runs fn on a tracked goroutine unless the bridge is stopped.
func (b *Bridge) spawn(name string, fn func(ctx context.Context)) bool {
	b.lifeMu.Lock()
	if b.stopped {
		b.lifeMu.Unlock()
		return false
	}
	b.wg.Add(1)
	b.lifeMu.Unlock()

	go func() {
		defer b.wg.Done()
		defer b.recoverPanic(name)
		fn(b.ctx)
	}()
	return true
}

// onBusConnect logs in if needed, announces liveness and runs discovery.
//
// The global refresh topic is subscribed first, so a refresh message can
// retry a failed login or discovery without waiting for a reconnect.
func (b *Bridge) onBusConnect(ctx context.Context) {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	if b.mqtt.IsConnected() {
		b.subscribe(b.topics.Refresh())
	}

	if err := b.ensureSession(ctx); err != nil {
		// Retried on the next bus connect or refresh.
		b.logError("cloud authentication failed", err)
		return
	}

	if b.mqtt.IsConnected() {
		b.publish(b.topics.Alive(), []byte(FormatTimestamp(b.now())), false)
		b.publish(b.topics.Online(), []byte("true"), true)
	}

	if err := b.Discover(ctx); err != nil {
		b.logError("device discovery failed", err)
	}
}

// onRefresh logs in again if the session is gone, then runs discovery.
func (b *Bridge) onRefresh(ctx context.Context) {
	b.connectMu.Lock()
	defer b.connectMu.Unlock()

	if err := b.ensureSession(ctx); err != nil {
		b.logError("cloud authentication failed", err)
		return
	}
	if err := b.Discover(ctx); err != nil {
		b.logError("device discovery failed", err)
	}
}

// ensureSession authenticates unless the cloud session is still valid.
func (b *Bridge) ensureSession(ctx context.Context) error {
	if b.cloud.IsAuthenticated() {
		return nil
	}
	_, err := b.cloud.Authenticate(ctx, b.email, b.password)
	return err
}

// Discover fetches the device snapshot and publishes it.
//
// For every device it publishes status, details (retained) and one topic
// per zone, and subscribes to the device's refresh and zone-set topics. It
// then publishes the device id list and opens the cloud stream if needed.
// Runs are serialized.
func (b *Bridge) Discover(ctx context.Context) error {
	b.discoverMu.Lock()
	defer b.discoverMu.Unlock()

	devices, err := b.cloud.ListDevices(ctx)
	if err != nil {
		b.metrics.Discoveries.WithLabelValues("error").Inc()
		return err
	}

	b.devicesMu.Lock()
	b.devices = devices
	b.devicesMu.Unlock()
	b.metrics.Discoveries.WithLabelValues("ok").Inc()

	if !b.mqtt.IsConnected() {
		b.logWarn("bus offline, discovery not published", "devices", len(devices))
		return nil
	}

	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.ID == "" {
			b.logWarn("skipping device without id", "name", d.Name)
			continue
		}
		b.publishDevice(d)
		ids = append(ids, d.ID)
	}

	list, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding device list: %w", err)
	}
	b.publish(b.topics.Devices(), list, false)

	b.logInfo("devices published", "count", len(ids))

	if !b.cloud.StreamOpen() {
		if err := b.cloud.OpenStream(ctx); err != nil {
			b.logError("opening cloud stream failed", err)
			b.superviseStream()
		}
	}

	return nil
}

// publishDevice publishes one device and subscribes to its control topics.
func (b *Bridge) publishDevice(d orbit.Device) {
	var status []byte
	if d.Status.Watering() {
		status = d.Status.WateringStatus
	}
	b.publish(b.topics.DeviceStatus(d.ID), status, false)
	b.publish(b.topics.DeviceDetails(d.ID), d.Raw, true)
	b.subscribe(b.topics.DeviceRefresh(d.ID))

	for _, z := range d.Zones {
		b.publish(b.topics.Zone(d.ID, z.Station), z.Raw, false)
		b.subscribe(b.topics.ZoneSet(d.ID, z.Station))
	}
}

// Devices returns the latest device snapshot.
func (b *Bridge) Devices() []orbit.Device {
	b.devicesMu.RLock()
	defer b.devicesMu.RUnlock()
	return append([]orbit.Device(nil), b.devices...)
}

// DeviceCount returns the number of devices in the latest snapshot.
func (b *Bridge) DeviceCount() int {
	b.devicesMu.RLock()
	defer b.devicesMu.RUnlock()
	return len(b.devices)
}

// CloudState returns the cloud client's state.
func (b *Bridge) CloudState() orbit.State {
	return b.cloud.State()
}

// handleBusMessage is the handler for every bridge subscription.
func (b *Bridge) handleBusMessage(topic string, payload []byte) {
	defer b.recoverPanic("bus message " + topic)

	route, err := b.router.Route(topic)
	if err != nil {
		b.reject(reasonInvalidTopic, topic, err)
		return
	}

	switch route.Kind {
	case RouteZoneSet:
		b.handleZoneSet(topic, route, payload)
	case RouteDeviceRefresh:
		// Device-specific refresh re-runs the full discovery.
		b.logInfo("refresh requested", "device_id", route.DeviceID)
		b.spawn("refresh", b.onRefresh)
	default:
		b.logDebug("ignoring unrecognized topic", "topic", topic)
	}
}

// handleZoneSet validates a zone command and sends it to the cloud.
func (b *Bridge) handleZoneSet(topic string, route Route, payload []byte) {
	cmd, err := ValidateCommand(payload)
	if err != nil {
		reason := reasonValidation
		if errors.Is(err, ErrMalformedPayload) {
			reason = reasonMalformed
		}
		b.reject(reason, topic, err)
		return
	}

	now := b.now()
	frame := BuildChangeModeCommand(route.DeviceID, route.Station, cmd, now)
	if err := b.cloud.SendCommand(frame); err != nil {
		reason := reasonSendFailed
		if errors.Is(err, orbit.ErrStreamNotOpen) {
			reason = reasonStreamNotOpen
		}
		b.reject(reason, topic, err)
		return
	}

	b.metrics.CommandsSent.Inc()
	b.recorder.RecordZoneCommand(route.DeviceID, route.Station, cmd.On, cmd.Time, now)
	b.logInfo("zone command sent",
		"device_id", route.DeviceID,
		"station", route.Station,
		"state", cmd.State,
		"time", cmd.Time,
	)
}

// reject logs and counts a dropped bus message.
func (b *Bridge) reject(reason, topic string, err error) {
	b.metrics.CommandsRejected.WithLabelValues(reason).Inc()
	b.logWarn("bus message dropped", "topic", topic, "reason", reason, "error", err)
}

// handleCloudEvent is the cloud client's event handler.
func (b *Bridge) handleCloudEvent(ev orbit.Event) {
	defer b.recoverPanic("cloud event " + ev.Kind.String())

	switch ev.Kind {
	case orbit.EventToken:
		b.logInfo("cloud token acquired", "token", logging.Redact(ev.Token))
	case orbit.EventUserID:
		b.logInfo("cloud user", "user_id", ev.UserID)
	case orbit.EventDevices:
		b.logDebug("cloud devices received", "count", len(ev.Devices))
	case orbit.EventDeviceID:
		b.logInfo("cloud device", "device_id", ev.DeviceID)
	case orbit.EventStreamOpen:
		b.logInfo("cloud stream open")
	case orbit.EventMessage:
		b.handleStreamMessage(ev.Message)
	case orbit.EventStreamClosed:
		b.logWarn("cloud stream closed", "error", ev.Err)
		b.superviseStream()
	case orbit.EventError:
		b.logWarn("cloud error", "error", ev.Err)
	}
}

// handleStreamMessage republishes a stream frame verbatim.
func (b *Bridge) handleStreamMessage(msg orbit.StreamMessage) {
	b.metrics.StreamMessages.Inc()
	b.recorder.RecordStreamEvent(msg.DeviceID, msg.Event, b.now())
	b.logDebug("cloud stream message", "event", msg.Event, "device_id", msg.DeviceID)

	if b.mqtt.IsConnected() {
		topic := b.topics.Message()
		if msg.DeviceID != "" {
			topic = b.topics.DeviceMessage(msg.DeviceID)
		}
		b.publish(topic, msg.Raw, false)
	}

	if msg.Event == eventChangeMode {
		b.logChangeMode(msg.Raw)
	}
}

// changeModeEvent is the part of a change_mode frame that gets logged.
type changeModeEvent struct {
	Mode     string `json:"mode"`
	Stations []struct {
		Station any `json:"station"`
		RunTime any `json:"run_time"`
	} `json:"stations"`
}

// logChangeMode logs each station of a change_mode frame.
func (b *Bridge) logChangeMode(raw []byte) {
	var ev changeModeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		b.logDebug("change_mode frame not decodable", "error", err)
		return
	}
	for _, st := range ev.Stations {
		b.logInfo("station mode changed", "station", st.Station, "mode", ev.Mode, "run_time", st.RunTime)
	}
}

// superviseStream starts reopening the stream unless a retry loop is
// already running.
func (b *Bridge) superviseStream() {
	if !b.streamRetrying.CompareAndSwap(false, true) {
		return
	}
	started := b.spawn("stream-reconnect", func(ctx context.Context) {
		defer b.streamRetrying.Store(false)
		b.reopenStream(ctx)
	})
	if !started {
		b.streamRetrying.Store(false)
	}
}

// reopenStream retries OpenStream with exponential backoff until it
// succeeds, the session is gone, or the bridge stops.
func (b *Bridge) reopenStream(ctx context.Context) {
	attempt := func() error {
		if !b.cloud.IsAuthenticated() {
			return backoff.Permanent(orbit.ErrNotAuthenticated)
		}
		if b.cloud.StreamOpen() {
			return nil
		}
		b.metrics.StreamReconnects.Inc()
		return b.cloud.OpenStream(ctx)
	}
	notify := func(err error, next time.Duration) {
		b.logWarn("cloud stream reopen failed", "error", err, "retry_in", next)
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(b.newStreamBackOff(), ctx), notify)
	switch {
	case err == nil:
		b.logInfo("cloud stream reopened")
	case ctx.Err() != nil:
	default:
		// The next bus connect logs in and reopens the stream.
		b.logError("cloud stream not reopened", err)
	}
}

// publish sends a message and logs failures.
func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if err := b.mqtt.Publish(topic, payload, b.qos, retained); err != nil {
		b.metrics.PublishFailures.Inc()
		b.logWarn("publish failed", "topic", topic, "error", err)
	}
}

// subscribe registers the bridge handler for topic and logs failures.
func (b *Bridge) subscribe(topic string) {
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleBusMessage); err != nil {
		b.logWarn("subscribe failed", "topic", topic, "error", err)
		return
	}
	b.logDebug("subscribed", "topic", topic)
}

func (b *Bridge) recoverPanic(where string) {
	if r := recover(); r != nil {
		b.logError("panic recovered", fmt.Errorf("%s: %v", where, r))
	}
}

// SetLogger sets the logger for bridge operations.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	defer b.loggerMu.Unlock()
	b.logger = logger
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
