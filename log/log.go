package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 构建进程日志，level为debug/info/warn/error，json为false时输出控制台格式
func New(level string, json bool) (logger *zap.Logger, err error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return
	}
	cfg := zap.NewProductionConfig()
	if !json {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel
	logger, err = cfg.Build()
	return
}
