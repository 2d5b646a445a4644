// Package config provides YAML-based configuration loading for the dccl
// tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dccl/go-dccl/internal/wasm"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

// Config is the root configuration.
type Config struct {
	// Codec holds the limits every registry is built with
	Codec CodecConfig `mapstructure:"codec"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// WASM configures the algorithm module host
	WASM WASMConfig `mapstructure:"wasm"`

	// Schemas lists TOML or YAML schema description files to load
	Schemas []string `mapstructure:"schemas"`

	// Algorithms lists WASM modules whose f64 -> f64 exports become algorithms
	Algorithms []AlgorithmModule `mapstructure:"algorithms"`
}

// CodecConfig mirrors schema.Limits.
type CodecConfig struct {
	HeaderBits      int `mapstructure:"header_bits"`
	MaxDepth        int `mapstructure:"max_depth"`
	MaxRepeat       int `mapstructure:"max_repeat"`
	MaxLength       int `mapstructure:"max_length"`
	MaxMessageBytes int `mapstructure:"max_message_bytes"`
	MaxElements     int `mapstructure:"max_elements"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// WASMConfig configures the WASM runtime.
type WASMConfig struct {
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages"`
	TimeoutMS        int    `mapstructure:"timeout_ms"`
}

// AlgorithmModule names a WASM module file. Each exported f64 -> f64
// function is registered as "<name>.<export>".
type AlgorithmModule struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	limits := schema.DefaultLimits()
	wasmCfg := wasm.DefaultConfig()
	return &Config{
		Codec: CodecConfig{
			HeaderBits:      limits.HeaderBits,
			MaxDepth:        limits.MaxDepth,
			MaxRepeat:       limits.MaxRepeat,
			MaxLength:       limits.MaxLength,
			MaxMessageBytes: limits.MaxMessageBytes,
			MaxElements:     limits.MaxElements,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/dccl.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		WASM: WASMConfig{
			MemoryLimitPages: wasmCfg.MemoryLimitPages,
			TimeoutMS:        int(wasmCfg.Timeout / time.Millisecond),
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix DCCL and `.`/`-` are replaced with `_`.
// Example: DCCL_CODEC_HEADER_BITS=8
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DCCL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("codec.header_bits", cfg.Codec.HeaderBits)
	v.SetDefault("codec.max_depth", cfg.Codec.MaxDepth)
	v.SetDefault("codec.max_repeat", cfg.Codec.MaxRepeat)
	v.SetDefault("codec.max_length", cfg.Codec.MaxLength)
	v.SetDefault("codec.max_message_bytes", cfg.Codec.MaxMessageBytes)
	v.SetDefault("codec.max_elements", cfg.Codec.MaxElements)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("wasm.memory_limit_pages", cfg.WASM.MemoryLimitPages)
	v.SetDefault("wasm.timeout_ms", cfg.WASM.TimeoutMS)
	v.SetDefault("schemas", cfg.Schemas)

	if path == "" {
		if envPath := os.Getenv("DCCL_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dccl")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dccl"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	switch c.Codec.HeaderBits {
	case 8, 16, 32:
	default:
		return fmt.Errorf("invalid codec.header_bits: %d", c.Codec.HeaderBits)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	for _, m := range c.Algorithms {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Path) == "" {
			return errors.New("algorithms entries need a name and a path")
		}
	}
	return nil
}

// Limits returns the codec limits as schema.Limits.
func (c *Config) Limits() schema.Limits {
	return schema.Limits{
		HeaderBits:      c.Codec.HeaderBits,
		MaxDepth:        c.Codec.MaxDepth,
		MaxRepeat:       c.Codec.MaxRepeat,
		MaxLength:       c.Codec.MaxLength,
		MaxMessageBytes: c.Codec.MaxMessageBytes,
		MaxElements:     c.Codec.MaxElements,
	}
}

// WASMRuntimeConfig returns the WASM settings as a wasm.Config.
func (c *Config) WASMRuntimeConfig() *wasm.Config {
	return &wasm.Config{
		MemoryLimitPages: c.WASM.MemoryLimitPages,
		Timeout:          time.Duration(c.WASM.TimeoutMS) * time.Millisecond,
	}
}
