// bhyve-mqtt bridges Orbit B-hyve sprinkler controllers to an MQTT broker.
//
// It logs in to the B-hyve cloud, publishes every device and zone under a
// topic prefix, turns zone-set messages into cloud commands, and republishes
// the cloud event stream. Configuration comes from an optional YAML file
// (BHYVE_CONFIG) and environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/billchurch/bhyve-mqtt/internal/api"
	"github.com/billchurch/bhyve-mqtt/internal/bridge"
	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/influxdb"
	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/logging"
	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/mqtt"
	"github.com/billchurch/bhyve-mqtt/internal/orbit"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configPathEnv names the optional YAML file. Without it, configuration
// comes from the environment alone.
const configPathEnv = "BHYVE_CONFIG"

var _ bridge.EventRecorder = (*influxdb.Client)(nil)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the components and blocks until ctx is cancelled or the bus
// gives up. Deferred closes run in reverse order: api, bridge, bus, cloud,
// recorder.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting bhyve-mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"broker", cfg.MQTT.Broker.Address,
		"topic_prefix", cfg.Bridge.TopicPrefix,
		"email", cfg.Orbit.Email,
	)

	// Event recorder (optional)
	var recorder bridge.EventRecorder
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		recorder = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Cloud session
	cloud := orbit.New(cfg.Orbit)
	cloud.SetLogger(log.Component("orbit"))
	defer func() {
		log.Info("closing cloud session")
		if closeErr := cloud.Close(); closeErr != nil {
			log.Error("error closing cloud session", "error", closeErr)
		}
	}()

	// Bus
	topics := bridge.NewTopics(cfg.Bridge.TopicPrefix)
	bus, err := mqtt.New(cfg.MQTT, topics.Online())
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	bus.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// Bridge
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	br, err := bridge.New(bridge.Options{
		MQTT:        &mqttBridgeAdapter{client: bus},
		Cloud:       cloud,
		TopicPrefix: cfg.Bridge.TopicPrefix,
		Email:       cfg.Orbit.Email,
		Password:    cfg.Orbit.Password,
		QoS:         byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
		Metrics:     bridge.NewMetrics(reg),
		Recorder:    recorder,
		Logger:      log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()

	// Every (re)connect logs in if needed and republishes discovery.
	bus.SetOnConnect(br.HandleBusConnect)
	bus.SetOnDisconnect(func(err error) {
		log.Warn("MQTT connection lost", "error", err)
	})

	if err := bus.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown requested during MQTT connect")
			return nil
		}
		return fmt.Errorf("connecting to MQTT: %w", err)
	}

	// Status API (optional)
	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Bus:      bus,
			Bridge:   br,
			Gatherer: reg,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case err := <-bus.Fatal():
		return fmt.Errorf("mqtt: %w", err)
	}

	log.Info("bhyve-mqtt stopped")
	return nil
}

// getConfigPath returns the YAML config path from BHYVE_CONFIG, or "" to
// configure from the environment only.
func getConfigPath() string {
	return os.Getenv(configPathEnv)
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the handler signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
