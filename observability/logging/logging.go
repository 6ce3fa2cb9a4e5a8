package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// levelEnvVar selects the minimum severity at startup. Unset or unrecognized
// values fall back to info.
const levelEnvVar = "CREDITD_LOG_LEVEL"

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(levelEnvVar))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// renameStandardKeys maps slog's built-in attribute keys onto the wire names
// the log pipeline indexes on: timestamp, severity and message.
func renameStandardKeys(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}

// Setup wires structured JSON logging for the service and returns the root
// logger. Every line carries the service name, plus the environment when one
// is configured. The minimum level comes from CREDITD_LOG_LEVEL. The standard
// library logger is bridged through the same handler so third-party packages
// land in the same stream.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       levelFromEnv(),
		ReplaceAttr: renameStandardKeys,
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	root := slog.New(handler.WithAttrs(attrs))
	slog.SetDefault(root)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return root
}
