// Package log is the leveled logger used across the node. The call shape follows the classic
// Debugf/Infof/Warningf/Errorf family; records are written as structured zerolog events.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DEFAULT_LEVEL = "info"
	LOG_FILE_NAME = "snode.log"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, zerolog.InfoLevel)
	file   *os.File

	// exit is swapped out by tests so Fatal can be observed without terminating the process
	exit = os.Exit
)

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Setup configures the level and, when dir is not empty, mirrors output into dir/snode.log.
func Setup(level string, dir string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano}
	var f *os.File
	if dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
		f, err = os.OpenFile(filepath.Join(dir, LOG_FILE_NAME), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
	}
	file = f
	logger = newLogger(out, lvl)
	return nil
}

// SetOutput redirects all records to w, keeping the current level.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, logger.GetLevel())
}

// SetLevel changes the minimum level that is written.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(lvl)
	return nil
}

func GetLevel() string {
	mu.RLock()
	defer mu.RUnlock()
	return logger.GetLevel().String()
}

// Flush closes the log file if one is open.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Sync()
		file.Close()
		file = nil
	}
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

func Debug(v ...interface{}) {
	current().Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...interface{}) {
	current().Debug().Msgf(format, v...)
}

func Info(v ...interface{}) {
	current().Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...interface{}) {
	current().Info().Msgf(format, v...)
}

func Infoln(v ...interface{}) {
	current().Info().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Warning(v ...interface{}) {
	current().Warn().Msg(fmt.Sprint(v...))
}

func Warningf(format string, v ...interface{}) {
	current().Warn().Msgf(format, v...)
}

func Warningln(v ...interface{}) {
	current().Warn().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Error(v ...interface{}) {
	current().Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...interface{}) {
	current().Error().Msgf(format, v...)
}

func Errorln(v ...interface{}) {
	current().Error().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Fatal logs at fatal level and terminates the process.
func Fatal(v ...interface{}) {
	current().WithLevel(zerolog.FatalLevel).Msg(fmt.Sprint(v...))
	Flush()
	exit(1)
}

func Fatalf(format string, v ...interface{}) {
	current().WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	Flush()
	exit(1)
}
