//go:build linux

package capture

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig 捕获器的日志配置。
type LogConfig struct {
	Level         string          `mapstructure:"level"`    // debug/info/warn/error，默认 info
	Encoding      string          `mapstructure:"encoding"` // console 或 json，默认 console
	FilePath      string          `mapstructure:"file_path"`
	Rotation      *RotationConfig `mapstructure:"rotation"`
	DisableStdout bool            `mapstructure:"disable_stdout"`
}

// RotationConfig 文件日志轮转配置。
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"` // MB
	MaxAge     int  `mapstructure:"max_age"`  // days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// NewLogger 根据配置构建 zap logger。
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("capture: log level: %w", err)
		}
	}

	writers := make([]io.Writer, 0, 2)
	if !cfg.DisableStdout {
		writers = append(writers, os.Stdout)
	}
	if cfg.FilePath != "" {
		rotation := cfg.Rotation
		if rotation == nil {
			rotation = &RotationConfig{MaxSize: 100, MaxAge: 30, MaxBackups: 7, Compress: true}
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    rotation.MaxSize,
			MaxAge:     rotation.MaxAge,
			MaxBackups: rotation.MaxBackups,
			Compress:   rotation.Compress,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	var enc zapcore.Encoder
	switch cfg.Encoding {
	case "", "console":
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("capture: unknown log encoding %q", cfg.Encoding)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(io.MultiWriter(writers...)), level)
	return zap.New(core), nil
}
