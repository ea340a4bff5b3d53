package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/takumi-1234/postsearch/internal/config"
)

// New は実行モードに応じた zap ロガーを生成します。
// production はJSON出力、development はカラー付きのコンソール出力です。
func New(cfg config.LoggerConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	switch cfg.Mode {
	case "production":
		zcfg = zap.NewProductionConfig()
	case "development", "":
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown logger mode %q", cfg.Mode)
	}

	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := zcfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
