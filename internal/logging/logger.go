// Package logging builds the zap logger used across cancelflow.
package logging

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voltgrid/cancelflow/internal/config"
)

// New creates a zap logger from the logging configuration.
// Components derive named child loggers via logger.Named("pipeline") etc.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// Secret creates a zap field for config.Secret values with a length
// indicator instead of the raw value.
func Secret(key string, val config.Secret) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val.Value()))+"]")
}

// Sync flushes the logger, ignoring the harmless EINVAL/ENOTTY errors
// returned when stderr is a terminal or pipe on Linux.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && isStdSyncError(err) {
		return nil
	}
	return err
}

func isStdSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
