// Package logger emits structured JSON log lines. One line per entry,
// fields merged from the logger's bound context and the call site.
// No external dependencies - uses only standard library.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// String returns the string representation of the log level.
func (l Level) String() string {
	if l < LevelDebug || l > LevelFatal {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a level name, case-insensitively. Unknown names
// default to info so a typo in LOG_LEVEL never silences the logger.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field      { return Field{key, value} }
func Int(key string, value int) Field     { return Field{key, value} }
func Int64(key string, value int64) Field { return Field{key, value} }
func Bool(key string, value bool) Field   { return Field{key, value} }
func Any(key string, value any) Field     { return Field{key, value} }

// Err renders an error under the "error" key. Nil stays nil so the
// field is still visible in the entry.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

func Duration(key string, value time.Duration) Field {
	return Field{key, value.String()}
}

func Time(key string, value time.Time) Field {
	return Field{key, value.Format(time.RFC3339)}
}

// Options configures a Logger. A nil Output means stdout.
type Options struct {
	Output     io.Writer
	Level      Level
	AddCaller  bool
	CallerSkip int
}

// Logger writes JSON entries at or above its level. With returns
// derived loggers; the write path is serialized with a mutex shared
// across the whole derivation tree.
type Logger struct {
	mu         *sync.Mutex
	out        io.Writer
	level      Level
	bound      []Field
	addCaller  bool
	callerSkip int
}

// New creates a Logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		mu:         &sync.Mutex{},
		out:        out,
		level:      opts.Level,
		addCaller:  opts.AddCaller,
		callerSkip: opts.CallerSkip,
	}
}

// Default returns an info-level stdout logger with caller info.
func Default() *Logger {
	return New(Options{Level: LevelInfo, AddCaller: true})
}

// With returns a derived logger carrying the extra fields. The parent
// is not modified.
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.bound = make([]Field, 0, len(l.bound)+len(fields))
	child.bound = append(child.bound, l.bound...)
	child.bound = append(child.bound, fields...)
	return &child
}

// WithRequestID returns a derived logger tagged with a request ID.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String("request_id", requestID))
}

type entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func (l *Logger) write(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
	}

	if l.addCaller {
		if _, file, line, ok := runtime.Caller(2 + l.callerSkip); ok {
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			e.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	if n := len(l.bound) + len(fields); n > 0 {
		e.Fields = make(map[string]any, n)
		for _, f := range l.bound {
			e.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			e.Fields[f.Key] = f.Value
		}
	}

	line, err := json.Marshal(e)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"timestamp":%q,"level":%q,"message":%q}`,
			e.Timestamp, e.Level, msg))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(line)
	l.out.Write([]byte("\n"))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.write(LevelFatal, msg, fields)
	os.Exit(1)
}

// Domain field helpers. Keep the key names stable; dashboards filter on them.
func UserID(id string) Field      { return String("user_id", id) }
func RoadmapID(id string) Field   { return String("roadmap_id", id) }
func ActivityType(t string) Field { return String("activity_type", t) }
func Day(key string) Field        { return String("day", key) }
func StreakDay(n int) Field       { return Int("streak_day", n) }
func Role(role string) Field      { return String("role", role) }
func Component(name string) Field { return String("component", name) }
