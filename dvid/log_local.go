package dvid

import (
	"fmt"
	"io"
	"log"

	"github.com/natefinch/lumberjack"
)

type stdLogger struct {
	*lumberjack.Logger
}

var logger Logger = stdLogger{}

// LogConfig is the [logging] section of the TOML configuration.
type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"`
	MaxAge  int `toml:"max_log_age"`
	Level   string
}

// SetLogger creates a logger that saves to a rotating log file.
func (c *LogConfig) SetLogger() {
	if c == nil {
		return
	}
	if lvl, err := ParseLogMode(c.Level); err == nil {
		SetLogMode(lvl)
	} else if c.Level != "" {
		Warningf("Ignoring bad log level %q: %v\n", c.Level, err)
	}
	if c.Logfile == "" {
		Infof("Sending log messages to stdout since no log file specified.\n")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  //days
	}
	log.SetOutput(l)
	logger = stdLogger{l}
}

// SetLogOutput redirects log output, mostly for tests.
func SetLogOutput(w io.Writer) {
	log.SetOutput(w)
}

func (m ModeFlag) String() string {
	switch m {
	case DebugMode:
		return "debug"
	case InfoMode:
		return "info"
	case WarningMode:
		return "warning"
	case ErrorMode:
		return "error"
	case CriticalMode:
		return "critical"
	case SilentMode:
		return "silent"
	}
	return fmt.Sprintf("unknown log mode %d", uint(m))
}

// ParseLogMode converts a level name like "debug" or "warning" into a ModeFlag.
// An empty string returns InfoMode.
func ParseLogMode(s string) (ModeFlag, error) {
	switch s {
	case "debug":
		return DebugMode, nil
	case "", "info":
		return InfoMode, nil
	case "warning", "warn":
		return WarningMode, nil
	case "error":
		return ErrorMode, nil
	case "critical":
		return CriticalMode, nil
	case "silent":
		return SilentMode, nil
	}
	return InfoMode, fmt.Errorf("unknown log level %q", s)
}

// --- Logger implementation ----

// Debugf formats its arguments analogous to fmt.Printf and records the text as a log
// message at Debug level.
func (slog stdLogger) Debugf(format string, args ...interface{}) {
	log.Printf(" DEBUG "+format, args...)
}

// Infof is like Debugf, but at Info level.
func (slog stdLogger) Infof(format string, args ...interface{}) {
	log.Printf(" INFO "+format, args...)
}

// Warningf is like Debugf, but at Warning level.
func (slog stdLogger) Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

// Errorf is like Debugf, but at Error level.
func (slog stdLogger) Errorf(format string, args ...interface{}) {
	log.Printf(" ERROR "+format, args...)
}

// Criticalf is like Debugf, but at Critical level.
func (slog stdLogger) Criticalf(format string, args ...interface{}) {
	log.Printf(" CRITICAL "+format, args...)
}

func (slog stdLogger) Shutdown() {
	log.Printf("Closing log file...\n")
	if slog.Logger != nil {
		slog.Close()
	}
}
