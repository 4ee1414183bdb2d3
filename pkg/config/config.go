// Package config は全サービス共通の設定を読み込む。
//
// 埋め込みの base.yaml を基底とし、環境変数 CONFIG_FILE で指定したYAMLを重ねる。
// YAML中の ${ENV:default} は環境変数で展開される。読み込んだ設定は起動後に変更しない。
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/shopgate/pkg/token"
	"go.uber.org/config"
	"go.uber.org/multierr"
)

//go:embed base.yaml
var baseYAML []byte

// ErrMissing は必須の設定値が欠けていることを表す。起動時の致命的エラーとして扱う。
var ErrMissing = errors.New("必須の設定値がありません")

// Config はサービス設定のルート。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	JWT     JWTConfig     `yaml:"jwt"`
	Gateway GatewayConfig `yaml:"gateway"`
	Auth    AuthConfig    `yaml:"auth"`
	Catalog CatalogConfig `yaml:"catalog"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port はリッスンポート。
	Port string `yaml:"port"`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LogConfig はロガーの設定。
type LogConfig struct {
	// Level は出力する最小ログレベル（debug, info, warn, error）。
	Level string `yaml:"level"`
	// Development が true の場合は開発者向けの出力形式を使用する。
	Development bool `yaml:"development"`
}

// JWTConfig は外部・内部トークンの設定。
type JWTConfig struct {
	External ExternalJWTConfig `yaml:"external"`
	Internal InternalJWTConfig `yaml:"internal"`
}

// ExternalJWTConfig は Jwt:External:* に対応する。
type ExternalJWTConfig struct {
	Issuer string `yaml:"issuer"`
	// Audience はカンマ区切りで複数指定できる。
	Audience  string        `yaml:"audience"`
	Secret    string        `yaml:"secret"`
	ClockSkew time.Duration `yaml:"clockSkew"`
}

// TokenConfig は外部トークン検証器の設定に変換する。
func (c ExternalJWTConfig) TokenConfig() token.ExternalConfig {
	return token.ExternalConfig{
		Issuer:    c.Issuer,
		Audiences: token.SplitAudiences(c.Audience),
		Secret:    c.Secret,
		ClockSkew: c.ClockSkew,
	}
}

func (c ExternalJWTConfig) validate() error {
	var err error
	if c.Issuer == "" {
		err = multierr.Append(err, missing("Jwt:External:Issuer"))
	}
	if len(token.SplitAudiences(c.Audience)) == 0 {
		err = multierr.Append(err, missing("Jwt:External:Audience"))
	}
	if c.Secret == "" {
		err = multierr.Append(err, missing("Jwt:External:Secret"))
	}
	return err
}

// InternalJWTConfig は Jwt:Internal:* に対応する。
type InternalJWTConfig struct {
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	Secret   string        `yaml:"secret"`
	Lifetime time.Duration `yaml:"lifetime"`
}

// TokenConfig は内部トークン発行・検証の設定に変換する。
func (c InternalJWTConfig) TokenConfig() token.InternalConfig {
	return token.InternalConfig{
		Issuer:   c.Issuer,
		Audience: c.Audience,
		Secret:   c.Secret,
		Lifetime: c.Lifetime,
	}
}

func (c InternalJWTConfig) validate() error {
	var err error
	if c.Issuer == "" {
		err = multierr.Append(err, missing("Jwt:Internal:Issuer"))
	}
	if c.Audience == "" {
		err = multierr.Append(err, missing("Jwt:Internal:Audience"))
	}
	if c.Secret == "" {
		err = multierr.Append(err, missing("Jwt:Internal:Secret"))
	}
	return err
}

// GatewayConfig はAPI Gatewayの設定。
type GatewayConfig struct {
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `yaml:"allowedOrigins"`
	// Routes はパス接頭辞と転送先の対応表。
	Routes []RouteConfig `yaml:"routes"`
	// AdminPort は /metrics を公開する運用向けのポート。空の場合は公開しない。
	AdminPort string `yaml:"adminPort"`
}

// RouteConfig は1つの転送ルート。
type RouteConfig struct {
	// Prefix はマッチさせるパス接頭辞。
	Prefix string `yaml:"prefix"`
	// Upstream は転送先サービスのベースURL。
	Upstream string `yaml:"upstream"`
	// StripPrefix が true の場合は転送時に接頭辞を取り除く。
	StripPrefix bool `yaml:"stripPrefix"`
}

// AuthConfig は認証サービスの設定。
type AuthConfig struct {
	// Database はSQLiteデータベースのパス。
	Database string `yaml:"database"`
	// DevTokens が true の場合は開発用の外部トークン発行を有効にする。
	DevTokens bool `yaml:"devTokens"`
	// ServiceSecret はサービス間トークン発行時に X-Service-Secret と照合する共有鍵。
	ServiceSecret string `yaml:"serviceSecret"`
}

// CatalogConfig は商品カタログサービスの設定。
type CatalogConfig struct {
	// Database はSQLiteデータベースのパス。
	Database string `yaml:"database"`
}

// FromEnv は環境変数と CONFIG_FILE から設定を読み込む。
func FromEnv() (*Config, error) {
	var sources []io.Reader
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルのオープンに失敗: %w", err)
		}
		defer f.Close()
		sources = append(sources, f)
	}
	return Load(os.LookupEnv, sources...)
}

// Load は base.yaml に sources を順に重ねて設定を読み込む。
// lookup は ${ENV:default} の展開に使用する。
func Load(lookup func(string) (string, bool), sources ...io.Reader) (*Config, error) {
	opts := []config.YAMLOption{config.Source(bytes.NewReader(baseYAML))}
	for _, s := range sources {
		opts = append(opts, config.Source(s))
	}
	opts = append(opts, config.Expand(quoteLookup(lookup)))

	provider, err := config.NewYAML(opts...)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	var cfg Config
	if err := provider.Get(config.Root).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗: %w", err)
	}
	return &cfg, nil
}

// unquotedKeys は真偽値としてそのまま展開する環境変数。
var unquotedKeys = map[string]struct{}{
	"LOG_DEVELOPMENT": {},
	"AUTH_DEV_TOKENS": {},
}

// quoteLookup は環境変数の値をYAMLのダブルクォート文字列として展開させる。
// 展開はYAMLの解析前に行われるため、値が数値や別名などとして再解釈されないようにする。
func quoteLookup(lookup func(string) (string, bool)) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		if _, raw := unquotedKeys[key]; raw {
			return v, true
		}
		return strconv.Quote(v), true
	}
}

// ValidateGateway はAPI Gatewayの起動に必要な設定を検証する。
func (c *Config) ValidateGateway() error {
	err := multierr.Combine(c.JWT.External.validate(), c.JWT.Internal.validate())
	if len(c.Gateway.Routes) == 0 {
		err = multierr.Append(err, missing("Gateway:Routes"))
	}
	for i, r := range c.Gateway.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			err = multierr.Append(err, fmt.Errorf("Gateway:Routes[%d] の接頭辞が不正です: %q", i, r.Prefix))
		}
		if u, perr := url.Parse(r.Upstream); perr != nil || u.Scheme == "" || u.Host == "" {
			err = multierr.Append(err, fmt.Errorf("Gateway:Routes[%d] の転送先URLが不正です: %q", i, r.Upstream))
		}
	}
	return err
}

// ValidateAuth は認証サービスの起動に必要な設定を検証する。
func (c *Config) ValidateAuth() error {
	err := c.JWT.Internal.validate()
	if c.Auth.ServiceSecret == "" {
		err = multierr.Append(err, missing("ServiceToService:Secret"))
	}
	if c.Auth.Database == "" {
		err = multierr.Append(err, missing("Auth:Database"))
	}
	if c.Auth.DevTokens {
		err = multierr.Append(err, c.JWT.External.validate())
	}
	return err
}

// ValidateCatalog は商品カタログサービスの起動に必要な設定を検証する。
func (c *Config) ValidateCatalog() error {
	err := c.JWT.Internal.validate()
	if c.Catalog.Database == "" {
		err = multierr.Append(err, missing("Catalog:Database"))
	}
	return err
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", ErrMissing, key)
}
