package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Environment variables read at startup.
const (
	EnvPath  = "HARMONIA_LOG"       // log file location
	EnvLevel = "HARMONIA_LOG_LEVEL" // logrus level name
)

// DefaultLevel is used when EnvLevel is unset or not a level name.
const DefaultLevel = logrus.InfoLevel

// DefaultPath returns the log file path used when EnvPath is unset.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "harmonia", "harmonia.log")
}

// LevelFromEnv parses EnvLevel with lookup.
func LevelFromEnv(lookup func(string) (string, bool)) logrus.Level {
	v, ok := lookup(EnvLevel)
	if !ok || v == "" {
		return DefaultLevel
	}
	lvl, err := logrus.ParseLevel(v)
	if err != nil {
		return DefaultLevel
	}
	return lvl
}

// Open configures a logger that writes to path. The terminal belongs to the
// TUI, so nothing is written to stderr once the program is running.
// The returned closer must be called on exit.
func Open(path string, level logrus.Level) (*logrus.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	log := New(f)
	log.SetLevel(level)
	return log, f, nil
}

// New returns a text-formatted logger writing to w.
func New(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return log
}

// Discard returns a logger that drops everything. Tests and callers that
// pass a nil logger get this one.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// OrDiscard returns log, or a discarding logger when log is nil.
func OrDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return Discard()
	}
	return log
}
