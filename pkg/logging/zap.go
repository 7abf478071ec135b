package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig controls the zap backend construction
type ZapConfig struct {
	Level  string `yaml:"level,omitempty"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format,omitempty"` // "console" or "json"
	Output string `yaml:"output,omitempty"` // "stderr", "stdout", or a file path
}

// DefaultZapConfig returns the configuration used when the config file has no
// logging section: human-readable console output on stderr at info level.
func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// NewZapLogger creates a Logger backed by a zap SugaredLogger. The guardian
// and keeper binaries use this as their root logger and derive prefixed
// subsystem loggers from it via NewLogger.
func NewZapLogger(config ZapConfig) (Logger, error) {
	zapLevel, err := parseZapLevel(config.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if config.Format == "console" || config.Format == "" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         encodingFor(config.Format),
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{outputFor(config.Output)},
		ErrorOutputPaths: []string{"stderr"},
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	sugar := zapLogger.Sugar()
	return NewLogger("", LogFuncs{
		Debugf: sugar.Debugf,
		Infof:  sugar.Infof,
		Warnf:  sugar.Warnf,
		Errorf: sugar.Errorf,
	}), nil
}

func parseZapLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func encodingFor(format string) string {
	if format == "json" {
		return "json"
	}
	return "console"
}

func outputFor(output string) string {
	if output == "" {
		return "stderr"
	}
	return output
}
