package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/shopgate/pkg/middleware"
	"github.com/nao1215/shopgate/pkg/token"
	"go.uber.org/zap"
)

// bearerPrefix は外部トークンとして扱うAuthorizationヘッダーの接頭辞。大文字小文字を区別する。
const bearerPrefix = "Bearer "

// ErrRejected はトークン変換の失敗を表す。原因はラップして保持するがクライアントには返さない。
var ErrRejected = errors.New("トークン変換を拒否しました")

// Outcome はトークン変換の結果区分。
type Outcome string

const (
	// OutcomeAnonymous は資格情報が無く匿名トークンを発行したことを表す。
	OutcomeAnonymous Outcome = "anonymous"
	// OutcomeUser は外部トークンを検証しユーザートークンを発行したことを表す。
	OutcomeUser Outcome = "user"
	// OutcomeRejected は外部トークンの検証または発行に失敗したことを表す。
	OutcomeRejected Outcome = "rejected"
)

// Result はトークン変換の結果。
type Result struct {
	Outcome Outcome
	// Header は転送先に渡すAuthorizationヘッダーの値。拒否時は空文字列。
	Header string
	// Claims は内部トークンに載せたクレーム集合。
	Claims token.ClaimSet
}

// Verifier は外部トークンを検証する。token.ExternalVerifier が実装する。
type Verifier interface {
	Verify(tokenString string) (token.ClaimSet, error)
}

// Minter は内部トークンを発行する。token.Issuer が実装する。
type Minter interface {
	Mint(claims token.ClaimSet) (string, error)
}

// Transformer は外部トークンを内部トークンに差し替える。
// 状態を持たないため複数のリクエストから並行に使用できる。
type Transformer struct {
	verifier Verifier
	minter   Minter
	logger   *zap.Logger
	metrics  *Metrics
}

// NewTransformer はトークン変換器を生成する。metrics は nil でもよい。
func NewTransformer(verifier Verifier, minter Minter, logger *zap.Logger, metrics *Metrics) *Transformer {
	return &Transformer{
		verifier: verifier,
		minter:   minter,
		logger:   logger,
		metrics:  metrics,
	}
}

// Transform は受信したAuthorizationヘッダーの値から転送用のヘッダー値を作る。
// ヘッダーが無いかBearer形式でない場合は匿名トークンを発行する。
// Bearer形式で検証に失敗した場合は ErrRejected を返し、匿名へは格下げしない。
// 内部でのパニックも ErrRejected として扱う。
func (t *Transformer) Transform(authHeader string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Outcome: OutcomeRejected}
			err = fmt.Errorf("%w: 予期しないパニック: %v", ErrRejected, r)
		}
	}()

	raw, found := strings.CutPrefix(authHeader, bearerPrefix)
	if !found {
		return t.mint(OutcomeAnonymous, token.Normalize(nil, token.AuthTypeAnonymous))
	}

	external, err := t.verifier.Verify(strings.TrimSpace(raw))
	if err != nil {
		return Result{Outcome: OutcomeRejected}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return t.mint(OutcomeUser, token.Normalize(external, token.AuthTypeUser))
}

func (t *Transformer) mint(outcome Outcome, claims token.ClaimSet) (Result, error) {
	internal, err := t.minter.Mint(claims)
	if err != nil {
		return Result{Outcome: OutcomeRejected}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return Result{
		Outcome: outcome,
		Header:  bearerPrefix + internal,
		Claims:  claims,
	}, nil
}

// Middleware はトークン変換を行うGinミドルウェアを返す。
// 拒否時は空のボディで401を返して処理を打ち切り、後続のハンドラーは実行しない。
// 成功時はリクエストのAuthorizationヘッダーを上書きするだけでレスポンスには触れない。
func (t *Transformer) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		res, err := t.Transform(c.GetHeader("Authorization"))
		t.metrics.observeTransform(res.Outcome, time.Since(start))

		fields := []zap.Field{
			zap.String("outcome", string(res.Outcome)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.GetRequestID(c)),
		}

		if err != nil {
			t.logger.Warn("外部トークンを拒否しました", append(fields, zap.Error(err))...)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		if sub, ok := res.Claims.Get("sub"); ok {
			fields = append(fields, zap.String("sub", sub))
		}
		if email, ok := res.Claims.Get("email"); ok {
			fields = append(fields, zap.String("email", email))
		}
		t.logger.Info("内部トークンを発行しました", fields...)

		c.Request.Header.Set("Authorization", res.Header)
		c.Next()
	}
}
