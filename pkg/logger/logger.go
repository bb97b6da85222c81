package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// logger holds the process-wide level behind an atomic pointer so Init can
// reconfigure it at runtime (and tests can swap it) without a mutex on the
// hot logging path.
type logger struct {
	level Level
}

var current atomic.Pointer[logger]

func init() {
	current.Store(&logger{level: LevelInfo})
}

// Init (re)configures the process-wide log level. Safe to call from tests
// to tighten or loosen verbosity per-suite.
func Init(level Level) {
	current.Store(&logger{level: level})
}

// Shutdown resets the logger to its default level. There is no buffered
// writer or file handle to flush; this exists so callers have a symmetric
// entry/exit pair instead of reaching into package state directly.
func Shutdown() {
	current.Store(&logger{level: LevelInfo})
}

func active() *logger {
	if l := current.Load(); l != nil {
		return l
	}
	return &logger{level: LevelInfo}
}

func (l *logger) enabled(level Level) bool {
	return level >= l.level
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

func write(level Level, component, message string, fields map[string]interface{}) {
	l := active()
	if !l.enabled(level) {
		return
	}
	line := fmt.Sprintf("%s [%s] [%s] %s%s\n",
		time.Now().Format("2006-01-02T15:04:05.000Z07:00"),
		level.String(),
		component,
		message,
		formatFields(fields),
	)
	if level >= LevelWarn {
		os.Stderr.WriteString(line)
	} else {
		os.Stdout.WriteString(line)
	}
}

// DebugC logs a plain message at DEBUG tagged with a component.
func DebugC(component, message string) { write(LevelDebug, component, message, nil) }

// InfoC logs a plain message at INFO tagged with a component.
func InfoC(component, message string) { write(LevelInfo, component, message, nil) }

// WarnC logs a plain message at WARN tagged with a component.
func WarnC(component, message string) { write(LevelWarn, component, message, nil) }

// ErrorC logs a plain message at ERROR tagged with a component.
func ErrorC(component, message string) { write(LevelError, component, message, nil) }

// DebugCF logs a message at DEBUG with structured fields appended.
func DebugCF(component, message string, fields map[string]interface{}) {
	write(LevelDebug, component, message, fields)
}

// InfoCF logs a message at INFO with structured fields appended.
func InfoCF(component, message string, fields map[string]interface{}) {
	write(LevelInfo, component, message, fields)
}

// WarnCF logs a message at WARN with structured fields appended.
func WarnCF(component, message string, fields map[string]interface{}) {
	write(LevelWarn, component, message, fields)
}

// ErrorCF logs a message at ERROR with structured fields appended.
func ErrorCF(component, message string, fields map[string]interface{}) {
	write(LevelError, component, message, fields)
}
