package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/httpserver"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/nao1215/shopgate/pkg/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server はAPI Gatewayサービスの HTTPサーバー。
type Server struct {
	router      *gin.Engine
	admin       *gin.Engine
	cfg         *config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	transformer *Transformer
	routes      *routeTable
}

// NewServer は新しいGatewayサーバーを生成する。
// 外部・内部トークンの設定が欠けている場合はエラーを返す。
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	verifier, err := token.NewExternalVerifier(cfg.JWT.External.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("外部トークン検証器の初期化に失敗: %w", err)
	}
	issuer, err := token.NewIssuer(cfg.JWT.Internal.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("内部トークン発行者の初期化に失敗: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(registry)

	routes, err := newRouteTable(cfg.Gateway.Routes, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("転送表の初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.CORS(cfg.Gateway.AllowedOrigins))

	admin := gin.New()
	admin.Use(middleware.Recovery(logger))

	s := &Server{
		router:      router,
		admin:       admin,
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		transformer: NewTransformer(verifier, issuer, logger, metrics),
		routes:      routes,
	}
	s.setupRoutes()

	return s, nil
}

// Handler は公開用のHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// AdminHandler は運用向けのHTTPハンドラーを返す。/metrics はこちらでのみ公開する。
func (s *Server) AdminHandler() http.Handler {
	return s.admin
}

// Run は ctx がキャンセルされるまで公開用と運用向けのHTTPサーバーを起動する。
// Gateway.AdminPort が空の場合、運用向けのサーバーは起動しない。
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv := httpserver.New(":"+s.cfg.Server.Port, s.router)
		return httpserver.Run(gctx, srv, nil, s.cfg.Server.ShutdownTimeout, s.logger)
	})
	if s.cfg.Gateway.AdminPort != "" {
		g.Go(func() error {
			srv := httpserver.New(":"+s.cfg.Gateway.AdminPort, s.admin)
			return httpserver.Run(gctx, srv, nil, s.cfg.Server.ShutdownTimeout, s.logger.With(zap.String("listener", "admin")))
		})
	}
	return g.Wait()
}

// setupRoutes はルーティングを設定する。
// ゲートウェイ自身のエンドポイント以外はすべてトークン変換を経て転送する。
func (s *Server) setupRoutes() {
	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	}
	s.router.GET("/health", health)
	s.admin.GET("/health", health)
	s.admin.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	s.router.NoRoute(s.transformer.Middleware(), s.handleProxy())
}

// handleProxy はパス接頭辞に一致するバックエンドへリクエストを転送するハンドラを返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		rt := s.routes.match(c.Request.URL.Path)
		if rt == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ルートが見つかりません"})
			return
		}
		rt.proxy.ServeHTTP(c.Writer, c.Request)
	}
}
