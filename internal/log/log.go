package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

var (
	// DebugLogger for verbose diagnostics, silent unless the level is "debug".
	DebugLogger = log.New(io.Discard, "DEBUG: ", flags)
	// InfoLogger for standard, non-error messages.
	InfoLogger = log.New(os.Stdout, "INFO: ", flags)
	// WarnLogger for recoverable problems.
	WarnLogger = log.New(os.Stderr, "WARN: ", flags)
	// ErrorLogger for error messages.
	ErrorLogger = log.New(os.Stderr, "ERROR: ", flags)
)

var mu sync.Mutex

// Level is a logging threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config value such as "DEBUG" or "warning" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "critical":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// SetLevel routes every logger below the threshold to io.Discard.
func SetLevel(s string) error {
	level, err := ParseLevel(s)
	if err != nil {
		return err
	}
	SetOutputs(level, os.Stdout, os.Stderr)
	return nil
}

// SetOutputs is SetLevel with explicit writers for info/debug and warn/error.
func SetOutputs(level Level, out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	DebugLogger.SetOutput(pick(level <= LevelDebug, out))
	InfoLogger.SetOutput(pick(level <= LevelInfo, out))
	WarnLogger.SetOutput(pick(level <= LevelWarn, errOut))
	ErrorLogger.SetOutput(pick(level <= LevelError, errOut))
}

func pick(enabled bool, w io.Writer) io.Writer {
	if enabled {
		return w
	}
	return io.Discard
}
