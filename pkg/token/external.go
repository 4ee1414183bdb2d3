package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ExternalConfig は外部IDプロバイダが発行したトークンの検証設定。
type ExternalConfig struct {
	// Issuer は許可する発行者（iss）。完全一致で比較する。
	Issuer string
	// Audiences は許可する audience の集合。いずれか1つと一致すればよい。
	Audiences []string
	// Secret はHMAC署名検証用の共通鍵。
	Secret string
	// ClockSkew は有効期限判定で許容する時刻のずれ。既定は0。
	ClockSkew time.Duration
}

// SplitAudiences はカンマ区切りの audience 設定を分割する。
// 前後の空白を取り除き、空の要素は捨てる。
func SplitAudiences(s string) []string {
	var audiences []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			audiences = append(audiences, a)
		}
	}
	return audiences
}

// ExternalVerifier は外部トークンを検証する。
type ExternalVerifier struct {
	params verifyParams
}

// NewExternalVerifier は外部トークンの検証器を生成する。
// 設定が欠けている場合は ErrMisconfigured を返す。
func NewExternalVerifier(cfg ExternalConfig, opts ...Option) (*ExternalVerifier, error) {
	switch {
	case cfg.Secret == "":
		return nil, misconfigured("Jwt:External:Secret")
	case cfg.Issuer == "":
		return nil, misconfigured("Jwt:External:Issuer")
	case len(cfg.Audiences) == 0:
		return nil, misconfigured("Jwt:External:Audience")
	case cfg.ClockSkew < 0:
		return nil, misconfigured("Jwt:External:ClockSkew")
	}

	o := newOptions(opts)
	return &ExternalVerifier{
		params: verifyParams{
			secret: []byte(cfg.Secret),
			methods: []string{
				jwt.SigningMethodHS256.Alg(),
				jwt.SigningMethodHS384.Alg(),
				jwt.SigningMethodHS512.Alg(),
			},
			issuer:    cfg.Issuer,
			audiences: append([]string(nil), cfg.Audiences...),
			leeway:    cfg.ClockSkew,
			now:       o.now,
		},
	}, nil
}

// Verify は外部トークンを検証し、ペイロードの全クレームを出現順に返す。
// 失敗した場合は原因にかかわらず ErrInvalidToken を返す。
func (v *ExternalVerifier) Verify(tokenString string) (ClaimSet, error) {
	return verify(tokenString, v.params)
}

// ExternalSigner は外部IDプロバイダの代わりに外部トークンを署名する。
// 開発環境で外部IDプロバイダを用意せずにゲートウェイを通すために使用する。
type ExternalSigner struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewExternalSigner は外部トークンの署名者を生成する。audience には先頭の設定値を使用する。
func NewExternalSigner(cfg ExternalConfig, opts ...Option) (*ExternalSigner, error) {
	switch {
	case cfg.Secret == "":
		return nil, misconfigured("Jwt:External:Secret")
	case cfg.Issuer == "":
		return nil, misconfigured("Jwt:External:Issuer")
	case len(cfg.Audiences) == 0:
		return nil, misconfigured("Jwt:External:Audience")
	}

	o := newOptions(opts)
	return &ExternalSigner{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audiences[0],
		now:      o.now,
	}, nil
}

// Sign は claims を載せた有効期間 lifetime の外部トークンをHS256で署名する。
// 予約クレームは指定できない。
func (s *ExternalSigner) Sign(claims ClaimSet, lifetime time.Duration) (string, error) {
	for _, c := range claims {
		if IsReserved(c.Name) {
			return "", fmt.Errorf("予約クレーム %q は指定できません", c.Name)
		}
	}

	now := s.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, mintedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		claims: claims,
	})
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("外部トークンの署名に失敗: %w", err)
	}
	return signed, nil
}
