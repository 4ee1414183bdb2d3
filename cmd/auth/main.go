// 認証サービスのエントリポイント。
// サービス間トークンと開発用の外部トークンを発行する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nao1215/shopgate/internal/auth"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zlog, err := logger.New(cfg.Log, "auth")
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := cfg.ValidateAuth(); err != nil {
		zlog.Fatal("設定が不正です", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := auth.NewServer(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("認証サーバーの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = server.Close() }()

	if err := server.Run(ctx); err != nil {
		zlog.Error("認証サービスの実行に失敗", zap.Error(err))
	}
}
