// Package logging builds the process-wide zap logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Mode  string // "development" or "production"
	Level string // debug, info, warn, error
	File  string // optional rolling log file
}

// New returns a logger configured for the given mode. Development mode logs to the
// console at debug level; any other mode uses the configured level. When File is set,
// entries are also written to a size-rotated file.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Mode != "development" {
		cfg = zap.NewProductionConfig()
		cfg.DisableCaller = true
		if err := cfg.Level.UnmarshalText([]byte(levelOrDefault(opts.Level))); err != nil {
			return nil, err
		}
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Encoding == "json" {
		enc = zapcore.NewJSONEncoder(cfg.EncoderConfig)
	} else {
		enc = zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	}

	ws := zapcore.Lock(zapcore.AddSync(os.Stdout))
	if opts.File != "" {
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}))
	}

	core := zapcore.NewCore(enc, ws, cfg.Level)
	options := []zap.Option{zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(os.Stderr)))}
	if !cfg.DisableCaller {
		options = append(options, zap.AddCaller())
	}
	return zap.New(core, options...), nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}
