package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envMap はテスト用の環境変数ルックアップを返す。
func envMap(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

// fullEnv はすべての必須値が設定された環境変数。
func fullEnv() map[string]string {
	return map[string]string{
		"JWT_EXTERNAL_ISSUER":       "ext-iss",
		"JWT_EXTERNAL_AUDIENCE":     "web, mobile",
		"JWT_EXTERNAL_SECRET":       "ext-secret",
		"JWT_INTERNAL_ISSUER":       "int-iss",
		"JWT_INTERNAL_AUDIENCE":     "int-aud",
		"JWT_INTERNAL_SECRET":       "int-secret",
		"SERVICE_TO_SERVICE_SECRET": "s2s",
	}
}

// TestLoad は設定の読み込みを検証する。
func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("環境変数が未設定の場合に既定値が使われること", func(t *testing.T) {
		t.Parallel()

		cfg, err := Load(envMap(nil))
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 15*time.Minute, cfg.JWT.Internal.Lifetime)
		assert.Equal(t, time.Duration(0), cfg.JWT.External.ClockSkew)
		assert.Empty(t, cfg.JWT.External.Secret)
		assert.False(t, cfg.Auth.DevTokens)
		assert.NotEmpty(t, cfg.Gateway.Routes)
		assert.Equal(t, "9090", cfg.Gateway.AdminPort)
	})

	t.Run("環境変数で値が展開されること", func(t *testing.T) {
		t.Parallel()

		env := fullEnv()
		env["PORT"] = "9000"
		env["JWT_INTERNAL_LIFETIME"] = "5m"
		env["CATALOG_URL"] = "http://catalog:8080"
		cfg, err := Load(envMap(env))
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.Server.Port)
		assert.Equal(t, 5*time.Minute, cfg.JWT.Internal.Lifetime)
		assert.Equal(t, []string{"web", "mobile"}, cfg.JWT.External.TokenConfig().Audiences)
		assert.Equal(t, "int-secret", cfg.JWT.Internal.TokenConfig().Secret)

		var upstream string
		for _, r := range cfg.Gateway.Routes {
			if r.Prefix == "/api/v1/products" {
				upstream = r.Upstream
			}
		}
		assert.Equal(t, "http://catalog:8080", upstream)
	})

	t.Run("環境変数の値がYAMLとして再解釈されないこと", func(t *testing.T) {
		t.Parallel()

		for _, v := range []string{"0x10", "0123", "~", "!x", "*x", "&x", "a: b", "true", "[a]", `"q"`, `back\slash`, "#c"} {
			env := fullEnv()
			env["JWT_EXTERNAL_SECRET"] = v
			env["JWT_INTERNAL_SECRET"] = v
			env["JWT_EXTERNAL_ISSUER"] = v
			env["CATALOG_URL"] = v
			cfg, err := Load(envMap(env))
			require.NoError(t, err, v)

			assert.Equal(t, v, cfg.JWT.External.Secret)
			assert.Equal(t, v, cfg.JWT.Internal.Secret)
			assert.Equal(t, v, cfg.JWT.External.Issuer)
			var upstream string
			for _, r := range cfg.Gateway.Routes {
				if r.Prefix == "/api/v1/products" {
					upstream = r.Upstream
				}
			}
			assert.Equal(t, v, upstream)
		}
	})

	t.Run("真偽値と期間の環境変数が解釈されること", func(t *testing.T) {
		t.Parallel()

		env := fullEnv()
		env["AUTH_DEV_TOKENS"] = "true"
		env["LOG_DEVELOPMENT"] = "true"
		env["SHUTDOWN_TIMEOUT"] = "3s"
		cfg, err := Load(envMap(env))
		require.NoError(t, err)

		assert.True(t, cfg.Auth.DevTokens)
		assert.True(t, cfg.Log.Development)
		assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	})

	t.Run("追加のYAMLで上書きできること", func(t *testing.T) {
		t.Parallel()

		override := strings.NewReader(`
gateway:
  routes:
    - prefix: /shop
      upstream: http://shop:8080
      stripPrefix: true
`)
		cfg, err := Load(envMap(fullEnv()), override)
		require.NoError(t, err)

		assert.Equal(t, []RouteConfig{{Prefix: "/shop", Upstream: "http://shop:8080", StripPrefix: true}}, cfg.Gateway.Routes)
	})
}

// TestValidate はサービスごとの必須設定の検証を確認する。
func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("必須値がすべて揃っていればエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		cfg, err := Load(envMap(fullEnv()))
		require.NoError(t, err)

		assert.NoError(t, cfg.ValidateGateway())
		assert.NoError(t, cfg.ValidateAuth())
		assert.NoError(t, cfg.ValidateCatalog())
	})

	t.Run("欠けている値がすべてエラーに含まれること", func(t *testing.T) {
		t.Parallel()

		cfg, err := Load(envMap(nil))
		require.NoError(t, err)

		err = cfg.ValidateGateway()
		require.ErrorIs(t, err, ErrMissing)
		for _, key := range []string{
			"Jwt:External:Issuer", "Jwt:External:Audience", "Jwt:External:Secret",
			"Jwt:Internal:Issuer", "Jwt:Internal:Audience", "Jwt:Internal:Secret",
		} {
			assert.Contains(t, err.Error(), key)
		}
	})

	t.Run("認証サービスはサービス間シークレットを要求すること", func(t *testing.T) {
		t.Parallel()

		env := fullEnv()
		delete(env, "SERVICE_TO_SERVICE_SECRET")
		cfg, err := Load(envMap(env))
		require.NoError(t, err)

		err = cfg.ValidateAuth()
		require.ErrorIs(t, err, ErrMissing)
		assert.Contains(t, err.Error(), "ServiceToService:Secret")
	})

	t.Run("開発用トークンを有効にすると外部トークン設定が必須になること", func(t *testing.T) {
		t.Parallel()

		env := fullEnv()
		delete(env, "JWT_EXTERNAL_SECRET")
		env["AUTH_DEV_TOKENS"] = "true"
		cfg, err := Load(envMap(env))
		require.NoError(t, err)

		err = cfg.ValidateAuth()
		require.ErrorIs(t, err, ErrMissing)
		assert.Contains(t, err.Error(), "Jwt:External:Secret")
	})

	t.Run("不正な転送先URLを検出すること", func(t *testing.T) {
		t.Parallel()

		cfg, err := Load(envMap(fullEnv()), strings.NewReader(`
gateway:
  routes:
    - prefix: shop
      upstream: not-a-url
`))
		require.NoError(t, err)

		err = cfg.ValidateGateway()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "接頭辞が不正")
		assert.Contains(t, err.Error(), "転送先URLが不正")
	})
}
