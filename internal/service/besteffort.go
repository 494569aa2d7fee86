package service

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bestEffort runs fn and turns any error into fallback after logging it at Info.
// Callers never see the error; the log line is the only trace of the failure.
func bestEffort[T any](ctx context.Context, logger *zap.Logger, op string, fallback T, fn func(context.Context) (T, error), fields ...zap.Field) T {
	return bestEffortAt(ctx, logger, zapcore.InfoLevel, op, fallback, fn, fields...)
}

// bestEffortAt is bestEffort with the failure logged at level
func bestEffortAt[T any](ctx context.Context, logger *zap.Logger, level zapcore.Level, op string, fallback T, fn func(context.Context) (T, error), fields ...zap.Field) T {
	logger.Info(op, fields...)

	v, err := fn(ctx)
	if err != nil {
		logger.Log(level, op+" failed", append(fields, zap.Error(err))...)
		return fallback
	}
	return v
}
