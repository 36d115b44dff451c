// Package logx 构造写往 stderr 的 zap 日志器：默认只输出 warn 及以上，--verbose 时输出 debug。
package logx

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 返回写往 w 的 console 格式日志器。w 为 nil 时返回 zap.NewNop()。
func New(w io.Writer, verbose bool) *zap.Logger {
	if w == nil {
		return zap.NewNop()
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "" // 终端输出不需要时间戳
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core)
}
