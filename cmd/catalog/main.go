// 商品カタログサービスのエントリポイント。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nao1215/shopgate/internal/catalog"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zlog, err := logger.New(cfg.Log, "catalog")
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := cfg.ValidateCatalog(); err != nil {
		zlog.Fatal("設定が不正です", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := catalog.NewServer(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("商品カタログサーバーの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = server.Close() }()

	if err := server.Run(ctx); err != nil {
		zlog.Error("商品カタログサービスの実行に失敗", zap.Error(err))
	}
}
