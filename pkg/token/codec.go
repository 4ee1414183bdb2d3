package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// payloadSegment はコンパクト形式のトークンからペイロード部分をデコードする。
func payloadSegment(tokenString string) ([]byte, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, errors.New("トークンのセグメント数が不正")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("ペイロードのデコードに失敗: %w", err)
	}
	return payload, nil
}

// decodeClaimSet はJSONペイロードをキーの出現順を保ったままクレーム集合に変換する。
// 配列は要素ごとに同名のクレームへ展開する。
// 同じキーが重複する場合は encoding/json と同じく最後の値のみを採用する。
func decodeClaimSet(payload []byte) (ClaimSet, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("ペイロードの読み取りに失敗: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("ペイロードがJSONオブジェクトではない")
	}

	var claims ClaimSet
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("クレーム名の読み取りに失敗: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.New("クレーム名が文字列ではない")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("クレーム %q の値の読み取りに失敗: %w", name, err)
		}
		values, err := claimValues(raw)
		if err != nil {
			return nil, fmt.Errorf("クレーム %q の値が不正: %w", name, err)
		}
		if claims.count(name) > 0 {
			claims = slices.DeleteFunc(claims, func(c Claim) bool { return c.Name == name })
		}
		for _, v := range values {
			claims = append(claims, Claim{Name: name, Value: v})
		}
	}
	return claims, nil
}

// claimValues はクレーム値のJSONを文字列のリストに変換する。
func claimValues(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			v, err := scalarValue(item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}

	v, err := scalarValue(raw)
	if err != nil {
		return nil, err
	}
	return []string{v}, nil
}

// scalarValue は文字列であれば引用符を外し、それ以外はコンパクトなJSON表現を返す。
func scalarValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// mintedClaims は内部トークンのペイロード。
// 登録クレームの後にアプリケーションクレームを元の順序で出力する。
type mintedClaims struct {
	jwt.RegisteredClaims
	claims ClaimSet
}

// MarshalJSON は登録クレームとアプリケーションクレームを順序通りにJSON化する。
func (m mintedClaims) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(name string, value any) error {
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		val, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	registered := []struct {
		name  string
		value any
		set   bool
	}{
		{"iss", m.Issuer, m.Issuer != ""},
		{"aud", singleAudience(m.Audience), len(m.Audience) > 0},
		{"exp", m.ExpiresAt, m.ExpiresAt != nil},
		{"nbf", m.NotBefore, m.NotBefore != nil},
		{"iat", m.IssuedAt, m.IssuedAt != nil},
		{"jti", m.ID, m.ID != ""},
	}
	for _, r := range registered {
		if !r.set {
			continue
		}
		if err := write(r.name, r.value); err != nil {
			return nil, err
		}
	}

	for _, name := range claimNames(m.claims) {
		values := m.claims.Values(name)
		var value any = values
		if len(values) == 1 {
			value = values[0]
		}
		if err := write(name, value); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// singleAudience は単一の audience を文字列として、複数の場合は配列として返す。
func singleAudience(aud jwt.ClaimStrings) any {
	if len(aud) == 1 {
		return aud[0]
	}
	return []string(aud)
}

// claimNames はクレーム名を初出順に重複なく返す。
func claimNames(claims ClaimSet) []string {
	seen := make(map[string]struct{}, len(claims))
	names := make([]string, 0, len(claims))
	for _, c := range claims {
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		names = append(names, c.Name)
	}
	return names
}
