// Package bridge connects the MQTT bus to the B-hyve cloud.
//
// Inbound, a bus message is routed by topic (Router), its payload is
// checked (ValidateCommand) and the result is sent to the cloud stream as
// a change_mode frame (BuildChangeModeCommand). Outbound, the device
// snapshot and every cloud stream frame are published under the topic
// prefix (Topics).
//
// # Event Protocol
//
//  1. The bus connects: log in to the cloud unless a session is held.
//  2. Login succeeds: publish <prefix>/alive and <prefix>/online, then discover.
//  3. Discovery: publish status, details and zones per device, subscribe
//     to the refresh and zone-set topics, publish <prefix>/devices, open
//     the stream.
//  4. A zone-set message: validate, build the command, send it.
//  5. A refresh message: discover again.
//  6. A stream frame: republish it to <prefix>/device/<id>/message, or to
//     <prefix>/message when it names no device.
//
// Every failure in steps 4 to 6 is logged, counted and dropped. A bad
// message never stops the bridge.
package bridge
