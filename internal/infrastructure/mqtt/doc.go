// Package mqtt provides the bridge's connection to the MQTT broker.
//
// This package manages:
//   - Connection to the broker with a bounded reconnection policy
//   - Message publishing (best-effort, dropped while offline)
//   - Idempotent topic subscriptions, replayed after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health and state reporting
//
// # Connection Policy
//
// The first connection is retried every reconnect period until it
// succeeds or the retry bound is reached. After that, paho reconnects on
// its own and every attempt is counted; reaching the bound moves the
// client to StateFailed and an error is delivered on Fatal(). A broker
// that refuses the credentials fails the client immediately.
//
// The process is expected to exit on a fatal error and rely on its
// supervisor (systemd, docker restart policy) to start it again.
//
// # Status Topic
//
//	<prefix>/online  "true"   retained, on every (re)connect
//	<prefix>/online  "false"  retained, on Close, and as the LWT
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT, "bhyve/online")
//	if err != nil {
//	    return err
//	}
//	client.SetOnConnect(func() { log.Info("bus ready") })
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("bhyve/device/refresh", 0,
//	    func(topic string, payload []byte) error {
//	        return refresh(topic)
//	    })
package mqtt
