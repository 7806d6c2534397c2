// Package unlog implements UnMTA's leveled logger.
//
// It follows the same shape as chasquid's internal/log: a Logger writes
// line-oriented messages to an io.WriteCloser, and can be reopened in place
// to support log rotation. Unlike chasquid's logger, levels are the five
// named in the UnMTA configuration: error, warn, info, debug, and smtp (the
// full client<->server dialogue).
package unlog

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity. Higher values are more verbose.
type Level int

// Logging levels, matching spec §6 exactly (int 0..4).
const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelSMTP
)

var levelNames = map[Level]string{
	LevelError: "error",
	LevelWarn:  "warn",
	LevelInfo:  "info",
	LevelDebug: "debug",
	LevelSMTP:  "smtp",
}

var namesToLevel = map[string]Level{
	"error": LevelError,
	"warn":  LevelWarn,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"smtp":  LevelSMTP,
}

// ParseLevel maps a configuration string to a Level.
func ParseLevel(name string) (Level, error) {
	l, ok := namesToLevel[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unlog: unknown level %q", name)
	}
	return l, nil
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return strconv.Itoa(int(l))
}

// Logger writes leveled log messages to an underlying writer.
type Logger struct {
	Level      Level
	LogTime    bool
	CallerSkip int

	mu   sync.Mutex
	path string // non-empty if backed by a regular file, for Reopen.
	w    io.WriteCloser
}

// New creates a Logger writing to w.
func New(w io.WriteCloser) *Logger {
	return &Logger{w: w, Level: LevelInfo, LogTime: true}
}

// NewFile creates a Logger backed by a regular file, reopenable on SIGHUP.
func NewFile(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := New(f)
	l.path = path
	return l, nil
}

// NewSyslog creates a Logger backed by syslog.
func NewSyslog(tag string) (*Logger, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, err
	}
	l := New(w)
	l.LogTime = false
	return l, nil
}

// Reopen closes and reopens the underlying file, for log rotation. It is a
// no-op for loggers not backed by a regular file (stderr, syslog).
func (l *Logger) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.path == "" {
		return nil
	}
	l.w.Close()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.w = f
	return nil
}

// Close the underlying writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// V reports whether level is enabled.
func (l *Logger) V(level Level) bool {
	return level <= l.Level
}

// Log writes a message at the given level, if enabled.
func (l *Logger) Log(level Level, format string, a ...interface{}) {
	if !l.V(level) {
		return
	}
	msg := fmt.Sprintf(format, a...)

	_, file, line, ok := runtime.Caller(2 + l.CallerSkip)
	if !ok {
		file = "unknown"
	}
	fl := fmt.Sprintf("%s:%d", filepath.Base(file), line)

	prefix := fmt.Sprintf("[%s]", level)
	if l.LogTime {
		prefix = time.Now().Format("2006-01-02 15:04:05.000 ") + prefix
	}
	msg = fmt.Sprintf("%s %-20s %s", prefix, fl, msg)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	l.mu.Lock()
	l.w.Write([]byte(msg))
	l.mu.Unlock()
}

func (l *Logger) Errorf(format string, a ...interface{}) { l.Log(LevelError, format, a...) }
func (l *Logger) Warnf(format string, a ...interface{})  { l.Log(LevelWarn, format, a...) }
func (l *Logger) Infof(format string, a ...interface{})  { l.Log(LevelInfo, format, a...) }
func (l *Logger) Debugf(format string, a ...interface{}) { l.Log(LevelDebug, format, a...) }

// SMTPf logs one line of the client<->server SMTP dialogue. dir is "C" for
// a line read from the client, "S" for a line written by the server.
func (l *Logger) SMTPf(sessionID int64, dir, line string) {
	l.Log(LevelSMTP, "[%d] %s: %s", sessionID, dir, strings.TrimRight(line, "\r\n"))
}

func (l *Logger) Fatalf(format string, a ...interface{}) {
	l.Log(LevelError, format, a...)
	os.Exit(1)
}

// Default is the package-level logger used when one isn't explicitly wired.
var Default = New(os.Stderr)

func Errorf(format string, a ...interface{}) { Default.Errorf(format, a...) }
func Warnf(format string, a ...interface{})  { Default.Warnf(format, a...) }
func Infof(format string, a ...interface{})  { Default.Infof(format, a...) }
func Debugf(format string, a ...interface{}) { Default.Debugf(format, a...) }
func Fatalf(format string, a ...interface{}) { Default.Fatalf(format, a...) }
