// Package dblog constructs the structured logger shared by storage/buffer
// and engine.
package dblog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger at the given level ("debug", "info",
// "warn", "error", or any other level name zap recognizes; anything else
// falls back to "info"). Console-encoded,
// matching the pack's own plain operational-log style rather than JSON.
func New(level string) *zap.SugaredLogger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Build only fails on a malformed config; ours is static, so this
		// is unreachable in practice. Fall back to a no-op logger rather
		// than panic in a library constructor.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
