// Package logging wires the engine's structured logger. It generalizes the
// teacher's internal/utils/logger.go from a single crawl-tool log to the
// engine library's logger, keeping the same zerolog + lumberjack shape.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the package-level logger every component logs through.
var Logger zerolog.Logger

// Config controls log level, destination, and rotation.
type Config struct {
	Level      string
	LogDir     string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	Console    bool
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Console:    true,
	}
}

// Init builds the multi-writer logger: an optional colored console, a main
// rotating log, and a level-filtered rotating error log.
func Init(cfg Config) error {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	mainLogFile := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "atlas_crawl.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	errorLogFile := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "atlas_crawl_error.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	writers := []io.Writer{
		mainLogFile,
		&levelFilteredWriter{writer: errorLogFile, minLevel: zerolog.ErrorLevel},
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	log.Logger = Logger

	Logger.Info().Str("level", cfg.Level).Str("log_dir", cfg.LogDir).Msg("logger initialized")
	return nil
}

// levelFilteredWriter only passes through writes at or above minLevel when
// used via zerolog's LevelWriter hook.
type levelFilteredWriter struct {
	writer   io.Writer
	minLevel zerolog.Level
}

func (w *levelFilteredWriter) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *levelFilteredWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level >= w.minLevel {
		return w.writer.Write(p)
	}
	return len(p), nil
}

func Info(msg string)                                 { Logger.Info().Msg(msg) }
func Infof(format string, args ...interface{})         { Logger.Info().Msgf(format, args...) }
func Warn(msg string)                                  { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...interface{})         { Logger.Warn().Msgf(format, args...) }
func Debugf(format string, args ...interface{})        { Logger.Debug().Msgf(format, args...) }
func Errorf(format string, args ...interface{})        { Logger.Error().Msgf(format, args...) }
func ErrorErr(err error, msg string)                   { Logger.Error().Err(err).Msg(msg) }
