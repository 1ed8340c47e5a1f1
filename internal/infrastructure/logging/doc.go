// Package logging is the bridge's slog-based structured logger.
//
// Entries carry service=bhyve-mqtt and the build version. Output is JSON
// by default or text for development, filtered by level:
//
//	logging:
//	  level: info      # BHYVE_LOG_LEVEL: debug, info, warn, error
//	  format: json     # BHYVE_LOG_FORMAT: json, text
//	  output: stdout   # stdout, stderr
//
// Components take a child logger:
//
//	log := logging.New(cfg.Logging, version)
//	bus.SetLogger(log.Component("mqtt"))
//
// Credentials must not reach the log. Attributes named password, token or
// orbit_session_token are cut to a four character prefix by the handler;
// other secrets go through Redact explicitly.
package logging
