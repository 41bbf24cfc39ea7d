// Package logging configures the process-wide logrus logger.
//
// Components never build their own logger: they take a *log.Entry scoped with
// a "component" field, falling back to For(name) on the standard logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls Setup.
type Options struct {
	Level string // debug, info, warn, error, quiet
	File  string // optional rotating log file, teed with stderr
	JSON  bool
}

// Setup applies opts to the standard logger. The returned closer flushes the
// rotating file, if any; it is safe to call when no file was configured.
func Setup(opts Options) (io.Closer, error) {
	SetLogLevel(opts.Level)

	if opts.JSON {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	}

	if strings.TrimSpace(opts.File) == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator, nil
}

// SetLogLevel maps a user-facing level name onto logrus. Unknown values fall
// back to info.
func SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose":
		log.SetLevel(log.DebugLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "quiet", "silent":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// For returns an entry on the standard logger tagged with component.
func For(component string) *log.Entry {
	return log.WithField("component", component)
}

// OrDefault returns l, or For(component) when l is nil.
func OrDefault(l *log.Entry, component string) *log.Entry {
	if l != nil {
		return l
	}
	return For(component)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
