// Package logging provides structured, leveled logging with timestamped
// session directories. Every run gets its own directory under BaseDir
// holding a plain-text log and a JSON-lines log, so a crashed session
// leaves a complete trail behind and can still be diagnosed.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/windowsadmins/cimian/pkg/config"
)

// LogLevel is the severity of a log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

func parseLevel(s string) LogLevel {
	switch s {
	case "ERROR":
		return LevelError
	case "WARN":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LogEntry is one structured log record, written as a JSON line.
type LogEntry struct {
	Time       int64          `json:"time"`
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	PID        int            `json:"pid"`
	Hostname   string         `json:"hostname"`
	SessionID  string         `json:"session_id"`
	RunType    string         `json:"run_type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// RetentionPolicy bounds how many past session directories are kept.
type RetentionPolicy struct {
	MaxSessions int // keep at most this many timestamped session dirs
	MaxAgeDays  int // delete session dirs older than this many days
}

// DefaultRetentionPolicy keeps 10 sessions or 30 days, whichever is hit first.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{MaxSessions: 10, MaxAgeDays: 30}
}

// LoggerConfig configures a Logger explicitly (used by tests and callers
// that don't have a full config.Configuration).
type LoggerConfig struct {
	BaseDir       string
	RunType       string
	SessionID     string
	Level         LogLevel
	Retention     RetentionPolicy
	EnableConsole bool
}

// Logger is a session-scoped structured logger. The package-level
// Info/Warn/Error/Debug functions operate on a process-wide singleton set
// up by Init; pkg/session and tests may also construct one directly.
type Logger struct {
	mu        sync.Mutex
	cfg       LoggerConfig
	level     LogLevel
	textFile  *os.File
	jsonFile  *os.File
	out       io.Writer
	text      *log.Logger
	sessionID string
	hostname  string
	logDir    string
}

var (
	instance *Logger
	initOnce sync.Once
)

func generateSessionID() string {
	return fmt.Sprintf("cimian-%s", time.Now().Format("20060102-150405"))
}

// Init sets up the process-wide singleton logger from a loaded
// configuration. Safe to call once per process; subsequent calls are no-ops.
func Init(cfg *config.Configuration) error {
	var err error
	initOnce.Do(func() {
		lc := LoggerConfig{
			BaseDir:       cfg.LogsPath(),
			RunType:       "auto",
			SessionID:     generateSessionID(),
			Level:         parseLevel(cfg.LogLevel),
			Retention:     DefaultRetentionPolicy(),
			EnableConsole: true,
		}
		instance, err = New(lc)
	})
	return err
}

// New constructs a standalone Logger (does not touch the singleton).
func New(cfg LoggerConfig) (*Logger, error) {
	if cfg.SessionID == "" {
		cfg.SessionID = generateSessionID()
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = os.TempDir()
	}
	logDir := filepath.Join(cfg.BaseDir, cfg.SessionID)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create session dir: %w", err)
	}

	textFile, err := os.Create(filepath.Join(logDir, "session.log"))
	if err != nil {
		return nil, fmt.Errorf("logging: create text log: %w", err)
	}
	jsonFile, err := os.Create(filepath.Join(logDir, "session.jsonl"))
	if err != nil {
		textFile.Close()
		return nil, fmt.Errorf("logging: create json log: %w", err)
	}

	var out io.Writer = textFile
	if cfg.EnableConsole {
		out = io.MultiWriter(os.Stdout, textFile)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	l := &Logger{
		cfg:       cfg,
		level:     cfg.Level,
		textFile:  textFile,
		jsonFile:  jsonFile,
		out:       out,
		text:      log.New(out, "", log.LstdFlags),
		sessionID: cfg.SessionID,
		hostname:  hostname,
		logDir:    logDir,
	}
	go l.applyRetention()
	return l, nil
}

// Close flushes and closes the logger's files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	if l.textFile != nil {
		if err := l.textFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.jsonFile != nil {
		if err := l.jsonFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CloseLogger closes the singleton logger, if initialized.
func CloseLogger() {
	if instance != nil {
		instance.Close()
	}
}

// GetCurrentLogDir returns the singleton's session directory.
func GetCurrentLogDir() string {
	if instance == nil {
		return ""
	}
	return instance.logDir
}

// GetSessionID returns the singleton's session identifier.
func GetSessionID() string {
	if instance == nil {
		return ""
	}
	return instance.sessionID
}

func (l *Logger) log(level LogLevel, msg string, kv []any) {
	if level > l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	props := kvToMap(kv)
	now := time.Now()
	entry := LogEntry{
		Time:       now.Unix(),
		Timestamp:  now.Format(time.RFC3339),
		Level:      level.String(),
		Message:    msg,
		PID:        os.Getpid(),
		Hostname:   l.hostname,
		SessionID:  l.sessionID,
		RunType:    l.cfg.RunType,
		Properties: props,
	}

	l.text.Printf("[%s] %s%s", level.String(), msg, formatKV(kv))
	if data, err := json.Marshal(entry); err == nil {
		l.jsonFile.Write(append(data, '\n'))
	}
}

func kvToMap(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		m[key] = kv[i+1]
	}
	return m
}

func formatKV(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	s := ""
	for i := 0; i+1 < len(kv); i += 2 {
		s += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return s
}

// Info, Warn, Error, Debug log a message with optional key-value pairs
// against the given Logger.
func (l *Logger) Info(msg string, kv ...any)  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.log(LevelError, msg, kv) }
func (l *Logger) Debug(msg string, kv ...any) { l.log(LevelDebug, msg, kv) }

// applyRetention deletes session directories older/more-numerous than
// the configured retention policy allows.
func (l *Logger) applyRetention() {
	entries, err := os.ReadDir(l.cfg.BaseDir)
	if err != nil {
		return
	}
	type dirInfo struct {
		path string
		mod  time.Time
	}
	var dirs []dirInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, dirInfo{filepath.Join(l.cfg.BaseDir, e.Name()), info.ModTime()})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mod.After(dirs[j].mod) })

	cutoff := time.Now().AddDate(0, 0, -l.cfg.Retention.MaxAgeDays)
	for i, d := range dirs {
		if i >= l.cfg.Retention.MaxSessions || d.mod.Before(cutoff) {
			os.RemoveAll(d.path)
		}
	}
}

// Package-level convenience functions operate on the singleton set up by
// Init. Before Init is called they fall back to stderr so library code can
// log unconditionally without every test bootstrapping a full logger.
func Info(msg string, kv ...any) {
	if instance != nil {
		instance.Info(msg, kv...)
		return
	}
	fmt.Fprintf(os.Stderr, "[INFO] %s%s\n", msg, formatKV(kv))
}

func Warn(msg string, kv ...any) {
	if instance != nil {
		instance.Warn(msg, kv...)
		return
	}
	fmt.Fprintf(os.Stderr, "[WARN] %s%s\n", msg, formatKV(kv))
}

func Error(msg string, kv ...any) {
	if instance != nil {
		instance.Error(msg, kv...)
		return
	}
	fmt.Fprintf(os.Stderr, "[ERROR] %s%s\n", msg, formatKV(kv))
}

func Debug(msg string, kv ...any) {
	if instance != nil {
		instance.Debug(msg, kv...)
	}
}
