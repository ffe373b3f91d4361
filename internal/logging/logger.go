package logging

// Leveled logging for farmreg

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel maps a config/flag string to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "off":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q (silent, error, info, verbose, debug)", s)
	}
}

// Logger provides leveled logging to stdout/stderr and an optional file.
// A nil *Logger discards everything.
type Logger struct {
	mu      sync.Mutex
	level   LogLevel
	file    *os.File
	fileLog *log.Logger
	stdout  *log.Logger
	stderr  *log.Logger
}

// NewLogger creates a new logger
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	l := &Logger{
		level:  level,
		stdout: log.New(os.Stdout, "", 0),
		stderr: log.New(os.Stderr, "", 0),
	}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = file
		l.fileLog = log.New(file, "", log.LstdFlags)
	}

	return l, nil
}

// NewWriterLogger logs everything at or below level to w. Used by tests and
// embedded callers that want to capture output.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	std := log.New(w, "", 0)
	return &Logger{level: level, stdout: std, stderr: std}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.fileLog = nil
		return err
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.enabled(LogLevelError) {
		l.write(fmt.Sprintf("ERROR: "+format, v...), true)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(LogLevelInfo) {
		l.write(fmt.Sprintf("INFO: "+format, v...), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.enabled(LogLevelVerbose) {
		l.write(fmt.Sprintf("VERBOSE: "+format, v...), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(LogLevelDebug) {
		l.write(fmt.Sprintf("DEBUG: "+format, v...), false)
	}
}

func (l *Logger) enabled(level LogLevel) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level >= level
}

// write sends msg to the file (always) and to the console: errors to
// stderr, everything else to stdout only at verbose or debug.
func (l *Logger) write(msg string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog != nil {
		l.fileLog.Println(msg)
	}

	if isError {
		l.stderr.Println(msg)
	} else if l.level >= LogLevelVerbose {
		l.stdout.Println(msg)
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	if l == nil {
		return LogLevelSilent
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogOperation logs one register operation. Successes are verbose, failures info.
func (l *Logger) LogOperation(operation, signal string, address uint16, success bool, rtt time.Duration, err error) {
	if l == nil {
		return
	}
	statusStr := "FAILED"
	if success {
		statusStr = "SUCCESS"
	}

	target := fmt.Sprintf("@%d", address)
	if signal != "" {
		target = fmt.Sprintf("%s @%d", signal, address)
	}

	var errStr string
	if err != nil {
		errStr = fmt.Sprintf(" - error: %v", err)
	}

	msg := fmt.Sprintf("%s %s on %s (RTT: %.3fms)%s",
		statusStr, operation, target, float64(rtt.Microseconds())/1000.0, errStr)

	if success {
		l.Verbose("%s", msg)
	} else {
		l.Info("%s", msg)
	}
}

// LogStartup logs the connection parameters of a session.
func (l *Logger) LogStartup(command, host string, port int, unitID uint8, timeout time.Duration, catalogName string) {
	l.Info("Starting farmreg %s", command)
	l.Verbose("  Controller: %s:%d (unit %d)", host, port, unitID)
	l.Verbose("  Timeout: %s", timeout)
	l.Verbose("  Catalog: %s", catalogName)
}

// LogWords logs register words in hex (debug level).
func (l *Logger) LogWords(label string, address uint16, words []uint16) {
	if !l.enabled(LogLevelDebug) {
		return
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("%04x", w)
	}
	l.Debug("%s @%d: %s", label, address, strings.Join(parts, " "))
}
