package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultLifetime は内部トークンの既定の有効期間。
const DefaultLifetime = 15 * time.Minute

// InternalConfig は内部トークンの署名・検証設定。
type InternalConfig struct {
	// Issuer は内部トークンの発行者（iss）。
	Issuer string
	// Audience は内部トークンの対象者（aud）。
	Audience string
	// Secret はHMAC署名用の共通鍵。
	Secret string
	// Lifetime は内部トークンの有効期間。0の場合は DefaultLifetime を使用する。
	Lifetime time.Duration
}

// validate は必須項目の欠落を検出する。
func (c InternalConfig) validate() error {
	switch {
	case c.Secret == "":
		return misconfigured("Jwt:Internal:Secret")
	case c.Issuer == "":
		return misconfigured("Jwt:Internal:Issuer")
	case c.Audience == "":
		return misconfigured("Jwt:Internal:Audience")
	case c.Lifetime < 0:
		return fmt.Errorf("%w: 有効期間が負の値です: %s", ErrMisconfigured, c.Lifetime)
	}
	return nil
}

// Issuer は内部トークンを発行する。
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
}

// NewIssuer は内部トークンの発行者を生成する。
// 設定が欠けている場合は ErrMisconfigured を返す。
func NewIssuer(cfg InternalConfig, opts ...Option) (*Issuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	lifetime := cfg.Lifetime
	if lifetime == 0 {
		lifetime = DefaultLifetime
	}
	o := newOptions(opts)
	return &Issuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		lifetime: lifetime,
		now:      o.now,
	}, nil
}

// Lifetime は発行するトークンの有効期間を返す。
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// Mint はクレーム集合に登録クレームを付与してHS256で署名した内部トークンを返す。
// claims は Normalize 済みであること。予約クレームを含む場合や
// 信頼タグがちょうど1つでない場合はエラーを返す。
func (i *Issuer) Mint(claims ClaimSet) (string, error) {
	if err := checkMintable(claims); err != nil {
		return "", err
	}

	now := i.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, mintedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		claims: claims,
	})

	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("内部トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// checkMintable は内部トークンに載せられるクレーム集合かどうかを検証する。
func checkMintable(claims ClaimSet) error {
	for _, c := range claims {
		if IsReserved(c.Name) {
			return fmt.Errorf("予約クレーム %q は指定できません", c.Name)
		}
	}
	if n := claims.count(ClaimAuthType); n != 1 {
		return fmt.Errorf("信頼タグは1つである必要があります: %d個", n)
	}
	tag, _ := claims.Get(ClaimAuthType)
	if !AuthType(tag).IsTrustTag() {
		return errors.New("信頼タグの値が不正です: " + tag)
	}
	return nil
}
