package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticesearch/latticed/pkg/types"
)

// Logger is the process-wide base logger. Component and per-update child
// loggers all derive from it via the With* helpers below.
var Logger zerolog.Logger

// Level is one of the severities the CLI's --log-level flag accepts.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config controls Init.
type Config struct {
	Level Level
	// JSONOutput selects the structured encoder a production deployment
	// scrapes; when false, Init falls back to zerolog's human-readable
	// ConsoleWriter instead, matching cmd/latticed's --log-json flag.
	JSONOutput bool
	// Output defaults to os.Stdout when nil; tests set it to capture log
	// lines.
	Output io.Writer
}

// Init configures the global Logger from cfg. It is called once, from
// Config.InitLogging, before any component logger is derived.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if !cfg.JSONOutput {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(output).With().Timestamp().Logger()
}

// WithComponent tags a logger with the subsystem it belongs to. The writer
// thread, the retention sweeper and cmd/latticed's main call this once at
// startup and keep the result for their lifetime; the update loop and the
// dump actor do not use it (the dump actor logs through WithDumpUID).
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithDumpUID tags a logger with the dump archive it is producing, for the
// lifetime of a single CreateDump call.
func WithDumpUID(dumpUID string) zerolog.Logger {
	return Logger.With().Str("dump_uid", dumpUID).Logger()
}

// WithUpdate attaches index_uid and update_id fields to logger, the pair
// the writer thread reports when popping or finishing an update fails. It takes an existing logger rather than the package Logger so the
// component tag a goroutine already carries (e.g. "updatestore-writer")
// survives alongside the per-update fields.
func WithUpdate(logger zerolog.Logger, indexUID types.IndexUID, updateID uint64) zerolog.Logger {
	return logger.With().Str("index_uid", string(indexUID)).Uint64("update_id", updateID).Logger()
}
