package token

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// verifyParams は署名検証と登録クレーム検証のパラメータ。
type verifyParams struct {
	secret    []byte
	methods   []string
	issuer    string
	audiences []string
	leeway    time.Duration
	now       func() time.Time
}

// verify は署名・発行者・audience・有効期限を検証し、ペイロードのクレーム集合を順序通りに返す。
// 失敗した場合は原因にかかわらず ErrInvalidToken を返す。
func verify(tokenString string, p verifyParams) (ClaimSet, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(p.methods),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
		jwt.WithTimeFunc(p.now),
	)

	parsed, err := parser.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, invalid(err)
	}
	if !parsed.Valid {
		return nil, invalid(errors.New("トークンが無効"))
	}

	aud, err := parsed.Claims.GetAudience()
	if err != nil {
		return nil, invalid(err)
	}
	if !intersects(aud, p.audiences) {
		return nil, invalid(fmt.Errorf("audienceが一致しません: %v", []string(aud)))
	}

	payload, err := payloadSegment(tokenString)
	if err != nil {
		return nil, invalid(err)
	}
	claims, err := decodeClaimSet(payload)
	if err != nil {
		return nil, invalid(err)
	}
	return claims, nil
}

// intersects は2つの audience 集合に共通要素があるかどうかを返す。
func intersects(got, want []string) bool {
	for _, a := range got {
		if slices.Contains(want, a) {
			return true
		}
	}
	return false
}

// InternalVerifier はバックエンドサービスで内部トークンを検証する。
type InternalVerifier struct {
	params verifyParams
}

// NewInternalVerifier は内部トークンの検証器を生成する。
// 設定が欠けている場合は ErrMisconfigured を返す。
func NewInternalVerifier(cfg InternalConfig, opts ...Option) (*InternalVerifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &InternalVerifier{
		params: verifyParams{
			secret:    []byte(cfg.Secret),
			methods:   []string{jwt.SigningMethodHS256.Alg()},
			issuer:    cfg.Issuer,
			audiences: []string{cfg.Audience},
			now:       o.now,
		},
	}, nil
}

// Verify は内部トークンを検証し、登録クレームを除いたクレーム集合を返す。
// Issuer.Mint に渡したクレーム集合がそのまま得られる。
func (v *InternalVerifier) Verify(tokenString string) (ClaimSet, error) {
	claims, err := verify(tokenString, v.params)
	if err != nil {
		return nil, err
	}
	return withoutReserved(claims), nil
}
