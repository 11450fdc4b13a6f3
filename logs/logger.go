package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"apex_hunter_go/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is an alias so callers don't need to import logrus for structured lines.
type Fields = logrus.Fields

const timestampFormat = "2006-01-02 15:04:05"

// rotatingHook copies every entry to a lumberjack file as JSON, one object per line,
// so trade and rejection lines can be grepped or loaded for post-run analysis.
type rotatingHook struct {
	formatter logrus.Formatter
	file      *lumberjack.Logger
}

func newRotatingHook(path string, cfg *config.LogConfig) *rotatingHook {
	return &rotatingHook{
		formatter: &logrus.JSONFormatter{TimestampFormat: timestampFormat},
		file: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
}

func (h *rotatingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *rotatingHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.file.Write(line)
	return err
}

var (
	log  = newConsoleLogger(logrus.InfoLevel, os.Stderr, false)
	hook *rotatingHook
)

func newConsoleLogger(level logrus.Level, out io.Writer, colors bool) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		ForceColors:            colors,
		FullTimestamp:          true,
		TimestampFormat:        timestampFormat,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
	l.SetOutput(out)
	return l
}

// Init replaces the default stderr logger with a coloured stdout logger that also
// writes JSON lines to a rotated file. Calling it again closes the previous file.
func Init(cfg *config.LogConfig, logFilePath string) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Silence the global logrus instance so stray library calls stay quiet.
	logrus.SetOutput(io.Discard)
	logrus.StandardLogger().Hooks = make(logrus.LevelHooks)

	closeHook()
	l := newConsoleLogger(level, os.Stdout, true)
	hook = newRotatingHook(logFilePath, cfg)
	l.AddHook(hook)
	log = l

	Infof("Logging system initialized at level %s, file %s", level, logFilePath)
	return nil
}

// Close flushes and releases the rotated file.
func Close() {
	Info("Logging system closed.")
	closeHook()
}

func closeHook() {
	if hook == nil {
		return
	}
	hook.file.Close()
	hook = nil
}

// SetOutput redirects the console output, mostly for tests.
func SetOutput(w io.Writer) { log.SetOutput(w) }

// SetLevel changes the active level.
func SetLevel(level logrus.Level) { log.SetLevel(level) }

// WithFields starts a structured entry.
func WithFields(fields Fields) *logrus.Entry { return log.WithFields(fields) }

func Debug(args ...interface{})                 { log.Debug(args...) }
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Info(args ...interface{})                  { log.Info(args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warn(args ...interface{})                  { log.Warn(args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Error(args ...interface{})                 { log.Error(args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
func Fatal(args ...interface{})                 { log.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }
