// 商品カタログへ初期データを投入するコマンド。
// 認証サービスからサービストークンを取得し、カタログサービスへ直接登録する。
//
// 使い方:
//
//	catalog-seed -file products.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/logger"
	"go.uber.org/zap"
)

// seedProduct は投入する商品。
type seedProduct struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

func main() {
	os.Exit(run())
}

// run はコマンド本体。遅延処理をすべて実行してから終了コードを返す。
func run() int {
	file := flag.String("file", "", "商品一覧のJSONファイル（省略時は標準入力）")
	authURL := flag.String("auth-url", envOr("AUTH_URL", "http://localhost:8081"), "認証サービスのURL")
	catalogURL := flag.String("catalog-url", envOr("CATALOG_URL", "http://localhost:8083"), "カタログサービスのURL")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Printf("設定の読み込みに失敗: %v", err)
		return 1
	}
	zlog, err := logger.New(cfg.Log, "catalog-seed")
	if err != nil {
		log.Printf("ロガーの初期化に失敗: %v", err)
		return 1
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.Auth.ServiceSecret == "" {
		zlog.Error("設定が不正です", zap.Error(fmt.Errorf("%w: ServiceToService:Secret", config.ErrMissing)))
		return 1
	}

	products, err := readProducts(*file)
	if err != nil {
		zlog.Error("商品一覧の読み込みに失敗", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runID := uuid.NewString()
	ctx = httpclient.WithRequestID(ctx, runID)
	zlog = zlog.With(zap.String("request_id", runID))

	tokens := httpclient.NewServiceTokenSource(*authURL, cfg.Auth.ServiceSecret)
	client := httpclient.New(*catalogURL, httpclient.WithTokenSource(tokens))

	created := seed(ctx, client, tokens, products, zlog)
	zlog.Info("投入が完了しました", zap.Int("created", created), zap.Int("total", len(products)))
	if created != len(products) {
		return 1
	}
	return 0
}

// seed は商品を1件ずつ登録し、登録できた件数を返す。
// 401の場合はトークンを取り直して1回だけ再送する。
func seed(ctx context.Context, client *httpclient.Client, tokens *httpclient.ServiceTokenSource, products []seedProduct, zlog *zap.Logger) int {
	created := 0
	for _, p := range products {
		var res struct {
			ID string `json:"id"`
		}
		err := client.PostJSON(ctx, "/api/v1/products", p, &res)
		if httpclient.IsStatus(err, http.StatusUnauthorized) {
			tokens.Invalidate()
			err = client.PostJSON(ctx, "/api/v1/products", p, &res)
		}
		if err != nil {
			zlog.Error("商品の登録に失敗", zap.String("name", p.Name), zap.Error(err))
			continue
		}
		created++
		zlog.Info("商品を登録しました", zap.String("id", res.ID), zap.String("name", p.Name))
	}
	return created
}

func readProducts(path string) ([]seedProduct, error) {
	in := os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}

	var products []seedProduct
	if err := json.NewDecoder(in).Decode(&products); err != nil {
		return nil, fmt.Errorf("JSONの解析に失敗: %w", err)
	}
	return products, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
