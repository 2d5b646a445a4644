// Package logging builds the zap logger used by the dccl tools.
//
// Codec and registry failures are logged per message, so production loggers
// sample repeated entries; development loggers keep every entry.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dccl/go-dccl/internal/config"
)

// Sampling keeps the first SampleInitial entries with the same level and
// message in each SampleTick, then every SampleThereafter-th one.
const (
	SampleTick       = time.Second
	SampleInitial    = 100
	SampleThereafter = 100
)

// Component names of the child loggers handed to each part of the stack.
const (
	ComponentSchema = "schema"
	ComponentCodec  = "codec"
	ComponentWASM   = "wasm"
)

// Setup builds a zap.Logger from the provided configuration and sets it as
// the global logger. An output that cannot be opened is an error. The caller
// should defer logger.Sync().
func Setup(c config.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(c.Level))

	encCfg := encoderConfig(c.Development)
	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	seen := make(map[string]struct{}, len(outputs))
	var cores []zapcore.Core
	for _, out := range outputs {
		key := strings.ToLower(strings.TrimSpace(out))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		ws, err := writerFor(strings.TrimSpace(out), c.Rotation)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}

	core := zapcore.NewTee(cores...)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.Development())
	} else {
		core = zapcore.NewSamplerWithOptions(core, SampleTick, SampleInitial, SampleThereafter)
	}

	logger := zap.New(core, opts...)
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// Named returns the child logger for one component of the codec stack.
func Named(logger *zap.Logger, component string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named(component)
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	}
	return zap.InfoLevel
}

// writerFor opens one output. Anything other than stdout or stderr is a file
// path; with rotation enabled the rotation filename wins when set.
func writerFor(out string, rot config.RotationConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	path := out
	if rot.Enable && strings.TrimSpace(rot.Filename) != "" {
		path = rot.Filename
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log output %s: %w", path, err)
		}
	}

	if rot.Enable {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    max(rot.MaxSizeMB, 10),
			MaxBackups: max(rot.MaxBackups, 1),
			MaxAge:     max(rot.MaxAgeDays, 7),
			Compress:   rot.Compress,
		}), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log output %s: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

func encoderConfig(dev bool) zapcore.EncoderConfig {
	if dev {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
