// Package logger はzapによる構造化ロガーを生成する。
package logger

import (
	"fmt"

	"github.com/nao1215/shopgate/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New は設定に応じたロガーを生成する。
// Development が true の場合は開発者向けのコンソール形式、それ以外はJSON形式で出力する。
func New(cfg config.LogConfig, service string) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("ログレベルが不正: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの生成に失敗: %w", err)
	}
	return l.With(zap.String("service", service)), nil
}
