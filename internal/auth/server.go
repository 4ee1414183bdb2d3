package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/config"
	"github.com/nao1215/shopgate/pkg/database"
	"github.com/nao1215/shopgate/pkg/httpclient"
	"github.com/nao1215/shopgate/pkg/httpserver"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/nao1215/shopgate/pkg/token"
	"go.uber.org/zap"
)

// devTokenLifetime は開発用外部トークンの有効期間。
const devTokenLifetime = time.Hour

// Server は認証サービスのHTTPサーバー。
type Server struct {
	router        *gin.Engine
	cfg           *config.Config
	logger        *zap.Logger
	db            *sql.DB
	users         *userStore
	issuer        *token.Issuer
	verifier      *token.InternalVerifier
	devSigner     *token.ExternalSigner
	serviceSecret []byte
}

// NewServer は新しい認証サーバーを生成する。
// データベースの初期化と内部トークン発行者の生成を行う。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.Auth.ServiceSecret == "" {
		return nil, fmt.Errorf("%w: ServiceToService:Secret", config.ErrMissing)
	}
	issuer, err := token.NewIssuer(cfg.JWT.Internal.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("内部トークン発行者の初期化に失敗: %w", err)
	}
	verifier, err := token.NewInternalVerifier(cfg.JWT.Internal.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("内部トークン検証器の初期化に失敗: %w", err)
	}

	var devSigner *token.ExternalSigner
	if cfg.Auth.DevTokens {
		devSigner, err = token.NewExternalSigner(cfg.JWT.External.TokenConfig())
		if err != nil {
			return nil, fmt.Errorf("開発用トークン署名者の初期化に失敗: %w", err)
		}
		logger.Warn("開発用トークンの発行が有効です。本番環境では無効にしてください")
	}

	db, err := database.OpenSQLite(ctx, cfg.Auth.Database, migrations, logger)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))

	s := &Server{
		router:        router,
		cfg:           cfg,
		logger:        logger,
		db:            db,
		users:         &userStore{db: db},
		issuer:        issuer,
		verifier:      verifier,
		devSigner:     devSigner,
		serviceSecret: []byte(cfg.Auth.ServiceSecret),
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
	// サービス間トークン発行（共有鍵で認証）
	s.router.POST(httpclient.ServiceTokenPath, s.handleServiceToken())

	auth := s.router.Group("/auth")
	auth.Use(middleware.InternalJWT(s.verifier, s.logger))
	{
		if s.devSigner != nil {
			// 開発用トークン発行
			auth.POST("/dev-token", middleware.RequireAuthType(token.AuthTypeAnonymous), s.handleDevToken())
		}
		// ログイン中のユーザー情報
		auth.GET("/me", middleware.RequireAuthType(token.AuthTypeUser), s.handleGetCurrentUser())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth"})
	})
}

// handleServiceToken は service 信頼タグの内部トークンを発行するハンドラを返す。
func (s *Server) handleServiceToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader(httpclient.HeaderServiceSecret)
		if secret == "" || subtle.ConstantTimeCompare([]byte(secret), s.serviceSecret) != 1 {
			s.logger.Warn("サービス認証に失敗しました",
				zap.String("client_ip", c.ClientIP()),
				zap.String("request_id", middleware.GetRequestID(c)),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "サービス認証に失敗しました"})
			return
		}

		signed, err := s.issuer.Mint(token.Normalize(nil, token.AuthTypeService))
		if err != nil {
			s.logger.Error("サービストークンの発行に失敗しました", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン発行に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, httpclient.ServiceTokenResponse{
			Token:     signed,
			ExpiresIn: int(s.issuer.Lifetime().Seconds()),
		})
	}
}

// handleDevToken は開発用の外部トークンを発行するハンドラを返す。
// 本番環境では無効化すべき。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.users.upsert(c.Request.Context(), User{
			Provider:       "dev",
			ProviderUserID: "dev-user",
			Email:          "dev@localhost",
			DisplayName:    "開発ユーザー",
		})
		if err != nil {
			s.logger.Error("開発ユーザーの保存に失敗しました", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー作成に失敗しました"})
			return
		}

		signed, err := s.devSigner.Sign(token.ClaimSet{
			{Name: "sub", Value: user.ID},
			{Name: "user_id", Value: user.ID},
			{Name: "email", Value: user.Email},
			{Name: "name", Value: user.DisplayName},
		}, devTokenLifetime)
		if err != nil {
			s.logger.Error("開発用トークンの署名に失敗しました", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      signed,
			"user_id":    user.ID,
			"expires_in": int(devTokenLifetime.Seconds()),
		})
	}
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		user, err := s.users.get(c.Request.Context(), userID)
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			s.logger.Error("ユーザーの取得に失敗しました", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":           user.ID,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"provider":     user.Provider,
		})
	}
}
