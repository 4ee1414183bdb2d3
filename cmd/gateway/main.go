// API Gatewayのエントリポイント。
// 外部トークンを内部トークンに差し替え、パス接頭辞に応じて各サービスへ転送する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nao1215/shopgate/internal/gateway"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zlog, err := logger.New(cfg.Log, "gateway")
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := cfg.ValidateGateway(); err != nil {
		zlog.Fatal("設定が不正です", zap.Error(err))
	}

	server, err := gateway.NewServer(cfg, zlog)
	if err != nil {
		zlog.Fatal("ゲートウェイサーバーの初期化に失敗", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		zlog.Error("ゲートウェイの実行に失敗", zap.Error(err))
	}
}
