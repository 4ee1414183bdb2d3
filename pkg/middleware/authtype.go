package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/token"
	"go.uber.org/zap"
)

// AuthTypeGuard は内部トークンの信頼タグでエンドポイントへのアクセスを制御する。
type AuthTypeGuard struct {
	// permissive が true の場合、未知の信頼タグを user として扱う。
	permissive bool
	logger     *zap.Logger
}

// GuardOption は AuthTypeGuard の挙動を変更する。
type GuardOption func(*AuthTypeGuard)

// WithPermissiveAuthType は未知の信頼タグを拒否せず user として扱う。
func WithPermissiveAuthType() GuardOption {
	return func(g *AuthTypeGuard) {
		g.permissive = true
	}
}

// WithGuardLogger は拒否時のログ出力先を設定する。
func WithGuardLogger(logger *zap.Logger) GuardOption {
	return func(g *AuthTypeGuard) {
		g.logger = logger
	}
}

// NewAuthTypeGuard は認可ガードを生成する。既定では未知の信頼タグを401で拒否する。
func NewAuthTypeGuard(opts ...GuardOption) *AuthTypeGuard {
	g := &AuthTypeGuard{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequireAuthType は既定の認可ガードで required のいずれかの信頼タグを要求する。
func RequireAuthType(required ...token.AuthType) gin.HandlerFunc {
	return NewAuthTypeGuard().Require(required...)
}

// Require は required のいずれかの信頼タグを要求するGinミドルウェアを返す。
// required に anonymous を含む場合は検査しない。
// user_or_service は user と service の両方を許可する。
// required が空の場合はルート登録時にパニックする。
func (g *AuthTypeGuard) Require(required ...token.AuthType) gin.HandlerFunc {
	if len(required) == 0 {
		panic("middleware: RequireAuthType には1つ以上の信頼タグが必要です")
	}
	required = slices.Clone(required)

	return func(c *gin.Context) {
		status, reason := g.decide(GetPrincipal(c), required)
		if status == http.StatusOK {
			c.Next()
			return
		}

		g.logger.Warn("信頼タグによりアクセスを拒否しました",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", GetRequestID(c)),
			zap.Int("status", status),
			zap.String("reason", reason),
		)
		switch status {
		case http.StatusUnauthorized:
			c.AbortWithStatusJSON(status, gin.H{"error": "認証が必要です"})
		default:
			c.AbortWithStatusJSON(status, gin.H{"error": "アクセス権限がありません"})
		}
	}
}

// decide は認証主体と要求タグから応答ステータスを決定する。許可の場合は200を返す。
func (g *AuthTypeGuard) decide(p *Principal, required []token.AuthType) (int, string) {
	if slices.Contains(required, token.AuthTypeAnonymous) {
		return http.StatusOK, ""
	}
	if p == nil {
		return http.StatusUnauthorized, "未認証"
	}
	if p.AuthType == "" {
		return http.StatusUnauthorized, "信頼タグなし"
	}

	actual, ok := token.ParseAuthType(p.AuthType)
	if !ok {
		if !g.permissive {
			return http.StatusUnauthorized, "未知の信頼タグ: " + p.AuthType
		}
		actual = token.AuthTypeUser
	}

	if slices.Contains(required, actual) {
		return http.StatusOK, ""
	}
	if slices.Contains(required, token.AuthTypeUserOrService) &&
		(actual == token.AuthTypeUser || actual == token.AuthTypeService) {
		return http.StatusOK, ""
	}
	return http.StatusForbidden, "信頼タグ不一致: " + string(actual)
}
