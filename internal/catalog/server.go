package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/database"
	"github.com/nao1215/shopgate/pkg/httpserver"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/nao1215/shopgate/pkg/token"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Server は商品カタログサービスのHTTPサーバー。
type Server struct {
	router   *gin.Engine
	cfg      *config.Config
	logger   *zap.Logger
	db       *sql.DB
	products *productStore
	verifier *token.InternalVerifier
}

// NewServer は新しい商品カタログサーバーを生成する。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	verifier, err := token.NewInternalVerifier(cfg.JWT.Internal.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("内部トークン検証器の初期化に失敗: %w", err)
	}

	db, err := database.OpenSQLite(ctx, cfg.Catalog.Database, migrations, logger)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))

	s := &Server{
		router:   router,
		cfg:      cfg,
		logger:   logger,
		db:       db,
		products: &productStore{db: db},
		verifier: verifier,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// Run は ctx がキャンセルされるまでHTTPサーバーを起動する。
func (s *Server) Run(ctx context.Context) error {
	srv := httpserver.New(":"+s.cfg.Server.Port, s.router)
	return httpserver.Run(ctx, srv, nil, s.cfg.Server.ShutdownTimeout, s.logger)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	guard := middleware.NewAuthTypeGuard(middleware.WithGuardLogger(s.logger))

	api := s.router.Group("/api/v1")
	api.Use(middleware.InternalJWT(s.verifier, s.logger))
	{
		products := api.Group("/products")
		{
			// 商品一覧取得
			products.GET("", guard.Require(token.AuthTypeAnonymous), s.handleList())
			// 商品詳細取得
			products.GET("/:id", guard.Require(token.AuthTypeAnonymous), s.handleGetByID())
			// 商品登録
			products.POST("", guard.Require(token.AuthTypeUserOrService), s.handleCreate())
			// 商品削除
			products.DELETE("/:id", guard.Require(token.AuthTypeService), s.handleDelete())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "catalog"})
	})
}

// createProductRequest は商品登録リクエストのJSON構造。
type createProductRequest struct {
	// Name は商品名。
	Name string `json:"name" binding:"required,max=200"`
	// PriceCents は価格（最小通貨単位）。
	PriceCents *int64 `json:"price_cents" binding:"required,gte=0"`
}

// handleCreate は商品を登録するハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: " + err.Error()})
			return
		}

		p, err := s.products.create(c.Request.Context(), req.Name, *req.PriceCents, middleware.GetUserID(c))
		if err != nil {
			s.logger.Error("商品の登録に失敗しました", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "商品の登録に失敗しました"})
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// handleList は商品一覧を返すハンドラを返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit", defaultLimit)
		if err != nil || limit <= 0 || limit > maxLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limitが不正です"})
			return
		}
		offset, err := queryInt(c, "offset", 0)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offsetが不正です"})
			return
		}

		products, err := s.products.list(c.Request.Context(), limit, offset)
		if err != nil {
			s.logger.Error("商品一覧の取得に失敗しました", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "商品一覧の取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"products": products})
	}
}

// handleGetByID は商品詳細を返すハンドラを返す。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.products.get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "商品が見つかりません"})
			return
		}
		if err != nil {
			s.logger.Error("商品の取得に失敗しました", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "商品の取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// handleDelete は商品を削除するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.products.delete(c.Request.Context(), c.Param("id"))
		if errors.Is(err, ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "商品が見つかりません"})
			return
		}
		if err != nil {
			s.logger.Error("商品の削除に失敗しました", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "商品の削除に失敗しました"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
