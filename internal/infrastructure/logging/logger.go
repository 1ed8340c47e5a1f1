package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/config"
)

const serviceName = "bhyve-mqtt"

// redactKeep is how many leading characters of a secret survive redaction.
const redactKeep = 4

// secretKeys are attribute keys whose string values are always redacted,
// whichever component logs them.
var secretKeys = map[string]bool{
	"password":            true,
	"token":               true,
	"orbit_session_token": true,
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is the bridge's structured logger. Every entry carries the
// service name and build version, and secret-named attributes are redacted.
type Logger struct {
	*slog.Logger
}

// New builds a logger writing to cfg.Output ("stderr" or stdout).
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return NewWithWriter(output, cfg, version)
}

// NewWithWriter is New with an explicit destination. cfg.Output is ignored.
func NewWithWriter(output io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler = slog.NewJSONHandler(output, opts)
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger: slog.New(handler).With("service", serviceName, "version", version),
	}
}

// parseLevel maps a level name to slog.Level, case-insensitively.
// Unknown names mean info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[a.Key] && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, Redact(a.Value.String()))
	}
	return a
}

// With returns a child logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before configuration is loaded: JSON on
// stdout at info.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// Redact shortens a secret to a recognisable prefix. It is idempotent.
//
//	logging.Redact("f00dcafe1234") // "f00d..."
func Redact(secret string) string {
	if len(secret) <= redactKeep {
		return "..."
	}
	return secret[:redactKeep] + "..."
}
