package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/shopgate/pkg/token"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testExternalConfig() token.ExternalConfig {
	return token.ExternalConfig{
		Issuer:    "ext-iss",
		Audiences: []string{"ext-aud"},
		Secret:    "ext-secret",
	}
}

func testInternalConfig() token.InternalConfig {
	return token.InternalConfig{
		Issuer:   "int-iss",
		Audience: "int-aud",
		Secret:   "int-secret",
	}
}

// signExternal は外部IDプロバイダの代わりに外部トークンを署名する。
func signExternal(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	base := jwt.MapClaims{
		"iss": "ext-iss",
		"aud": "ext-aud",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, base).SignedString([]byte("ext-secret"))
	require.NoError(t, err)
	return signed
}

// verifyInternal は転送されたAuthorizationヘッダーの内部トークンを検証する。
func verifyInternal(t *testing.T, header string) token.ClaimSet {
	t.Helper()

	raw, ok := strings.CutPrefix(header, "Bearer ")
	require.True(t, ok, "Bearer形式であること: %q", header)

	v, err := token.NewInternalVerifier(testInternalConfig())
	require.NoError(t, err)
	claims, err := v.Verify(raw)
	require.NoError(t, err)
	return claims
}

func newTestTransformer(t *testing.T, metrics *Metrics) *Transformer {
	t.Helper()

	verifier, err := token.NewExternalVerifier(testExternalConfig())
	require.NoError(t, err)
	issuer, err := token.NewIssuer(testInternalConfig())
	require.NoError(t, err)
	return NewTransformer(verifier, issuer, zap.NewNop(), metrics)
}

// counterValue はカウンターの現在値を返す。
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type panicVerifier struct{}

func (panicVerifier) Verify(string) (token.ClaimSet, error) {
	panic("verifier exploded")
}

type failingMinter struct{}

func (failingMinter) Mint(token.ClaimSet) (string, error) {
	return "", errors.New("signing failed")
}

// TestTransform はトークン変換の状態遷移を検証する。
func TestTransform(t *testing.T) {
	t.Parallel()

	tr := newTestTransformer(t, nil)

	t.Run("ヘッダーが無い場合は匿名トークンを発行すること", func(t *testing.T) {
		t.Parallel()

		res, err := tr.Transform("")
		require.NoError(t, err)

		assert.Equal(t, OutcomeAnonymous, res.Outcome)
		claims := verifyInternal(t, res.Header)
		assert.Equal(t, token.ClaimSet{{Name: token.ClaimAuthType, Value: "anonymous"}}, claims)
	})

	t.Run("Bearer以外の形式は匿名として扱うこと", func(t *testing.T) {
		t.Parallel()

		signed := signExternal(t, nil)
		for _, header := range []string{"Basic dXNlcjpwYXNz", "bearer " + signed, "BEARER " + signed, "Bearer" + signed, signed} {
			res, err := tr.Transform(header)
			require.NoError(t, err, header)
			assert.Equal(t, OutcomeAnonymous, res.Outcome, header)
		}
	})

	t.Run("有効な外部トークンはユーザートークンに変換されること", func(t *testing.T) {
		t.Parallel()

		signed := signExternal(t, jwt.MapClaims{"sub": "user-1", "email": "foo@bar.com"})
		res, err := tr.Transform("Bearer " + signed)
		require.NoError(t, err)

		assert.Equal(t, OutcomeUser, res.Outcome)
		claims := verifyInternal(t, res.Header)
		assert.Equal(t, []string{"user"}, claims.Values(token.ClaimAuthType))
		email, _ := claims.Get("email")
		assert.Equal(t, "foo@bar.com", email)
		sub, _ := claims.Get("sub")
		assert.Equal(t, "user-1", sub)
		assert.Equal(t, res.Claims, claims)
	})

	t.Run("トークン前後の空白は取り除かれること", func(t *testing.T) {
		t.Parallel()

		res, err := tr.Transform("Bearer   " + signExternal(t, nil) + "  ")
		require.NoError(t, err)
		assert.Equal(t, OutcomeUser, res.Outcome)
	})

	t.Run("外部トークンの信頼タグは上書きされること", func(t *testing.T) {
		t.Parallel()

		signed := signExternal(t, jwt.MapClaims{"auth_type": "service"})
		res, err := tr.Transform("Bearer " + signed)
		require.NoError(t, err)

		claims := verifyInternal(t, res.Header)
		assert.Equal(t, []string{"user"}, claims.Values(token.ClaimAuthType))
	})

	t.Run("不正な外部トークンは拒否され匿名に格下げされないこと", func(t *testing.T) {
		t.Parallel()

		for _, header := range []string{"Bearer garbage", "Bearer ", "Bearer a.b.c"} {
			res, err := tr.Transform(header)
			require.ErrorIs(t, err, ErrRejected, header)
			assert.ErrorIs(t, err, token.ErrInvalidToken, header)
			assert.Equal(t, OutcomeRejected, res.Outcome)
			assert.Empty(t, res.Header)
		}
	})

	t.Run("期限切れの外部トークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		signed := signExternal(t, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})
		_, err := tr.Transform("Bearer " + signed)
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("検証中のパニックは拒否として扱われること", func(t *testing.T) {
		t.Parallel()

		issuer, err := token.NewIssuer(testInternalConfig())
		require.NoError(t, err)
		tr := NewTransformer(panicVerifier{}, issuer, zap.NewNop(), nil)

		res, err := tr.Transform("Bearer anything")
		assert.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, OutcomeRejected, res.Outcome)
	})

	t.Run("発行に失敗した場合は匿名でも拒否されること", func(t *testing.T) {
		t.Parallel()

		tr := NewTransformer(panicVerifier{}, failingMinter{}, zap.NewNop(), nil)

		res, err := tr.Transform("")
		assert.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, OutcomeRejected, res.Outcome)
	})
}

// TestTransformConcreteScenario は外部鍵 ext-secret から内部鍵 int-secret への変換を検証する。
func TestTransformConcreteScenario(t *testing.T) {
	t.Parallel()

	tr := newTestTransformer(t, nil)
	before := time.Now()

	signed := signExternal(t, jwt.MapClaims{"email": "foo@bar.com"})
	res, err := tr.Transform("Bearer " + signed)
	require.NoError(t, err)

	raw := strings.TrimPrefix(res.Header, "Bearer ")
	var registered jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &registered, func(tok *jwt.Token) (any, error) {
		return []byte("int-secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "int-iss", registered.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"int-aud"}, registered.Audience)
	assert.False(t, registered.ExpiresAt.After(before.Add(15*time.Minute+time.Second)))
	assert.True(t, registered.ExpiresAt.After(before))

	claims := verifyInternal(t, res.Header)
	assert.Equal(t, token.ClaimSet{
		{Name: "email", Value: "foo@bar.com"},
		{Name: token.ClaimAuthType, Value: "user"},
	}, claims)

	_, err = jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte("ext-secret"), nil
	})
	assert.Error(t, err, "外部鍵では検証できないこと")
}

// TestMiddleware はGinミドルウェアとしての振る舞いを検証する。
func TestMiddleware(t *testing.T) {
	t.Parallel()

	newRouter := func(tr *Transformer, reached *bool, forwarded *string) *gin.Engine {
		router := gin.New()
		router.Use(tr.Middleware())
		router.GET("/x", func(c *gin.Context) {
			*reached = true
			*forwarded = c.GetHeader("Authorization")
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
		return router
	}

	t.Run("拒否時は空のボディで401を返し後続を実行しないこと", func(t *testing.T) {
		t.Parallel()

		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)
		var reached bool
		var forwarded string
		router := newRouter(newTestTransformer(t, metrics), &reached, &forwarded)

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Body.Bytes())
		assert.False(t, reached)
		assert.InDelta(t, 1, counterValue(t, metrics.transforms.WithLabelValues("rejected")), 0)
	})

	t.Run("成功時はAuthorizationヘッダーを内部トークンで上書きすること", func(t *testing.T) {
		t.Parallel()

		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)
		var reached bool
		var forwarded string
		router := newRouter(newTestTransformer(t, metrics), &reached, &forwarded)

		external := signExternal(t, jwt.MapClaims{"sub": "u-1"})
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+external)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, reached)
		assert.NotEqual(t, "Bearer "+external, forwarded)
		claims := verifyInternal(t, forwarded)
		assert.Equal(t, []string{"user"}, claims.Values(token.ClaimAuthType))
		assert.InDelta(t, 1, counterValue(t, metrics.transforms.WithLabelValues("user")), 0)
	})

	t.Run("並行リクエストでもそれぞれ独立に変換されること", func(t *testing.T) {
		t.Parallel()

		tr := newTestTransformer(t, nil)
		userHeader := "Bearer " + signExternal(t, jwt.MapClaims{"sub": "u"})
		var wg sync.WaitGroup
		errs := make(chan string, 40)
		for i := 0; i < 40; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				header := ""
				want := OutcomeAnonymous
				switch i % 3 {
				case 1:
					header = userHeader
					want = OutcomeUser
				case 2:
					header = "Bearer garbage"
					want = OutcomeRejected
				}
				res, _ := tr.Transform(header)
				if res.Outcome != want {
					errs <- string(res.Outcome)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for e := range errs {
			t.Errorf("想定外の結果: %s", e)
		}
	})
}
