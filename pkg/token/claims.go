package token

// Claim はトークンに含まれる1つのクレーム（名前と値の組）。
type Claim struct {
	// Name はクレーム名。
	Name string
	// Value はクレーム値。文字列以外のJSON値はコンパクトなJSON表現で保持する。
	Value string
}

// ClaimSet は順序付きのクレーム集合。
// 同名のクレームが複数存在する場合、トークン上ではJSON配列として表現される。
type ClaimSet []Claim

// Get は指定した名前を持つ最初のクレーム値を返す。
func (s ClaimSet) Get(name string) (string, bool) {
	for _, c := range s {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Values は指定した名前を持つすべてのクレーム値を出現順に返す。
func (s ClaimSet) Values(name string) []string {
	var values []string
	for _, c := range s {
		if c.Name == name {
			values = append(values, c.Value)
		}
	}
	return values
}

// count は指定した名前を持つクレームの数を返す。
func (s ClaimSet) count(name string) int {
	n := 0
	for _, c := range s {
		if c.Name == name {
			n++
		}
	}
	return n
}

// reservedClaimNames は発行側が再生成するためトラストドメインを越えて転送しないクレーム名。
var reservedClaimNames = map[string]struct{}{
	"iss": {},
	"aud": {},
	"exp": {},
	"iat": {},
	"nbf": {},
	"jti": {},
}

// IsReserved は name がJWTの予約クレーム名かどうかを返す。
func IsReserved(name string) bool {
	_, ok := reservedClaimNames[name]
	return ok
}

// Normalize は予約クレームと既存の信頼タグを取り除き、末尾に tag の信頼タグを1つ追加する。
// 入力は変更しない。同じ tag で再適用しても結果は変わらない。
func Normalize(claims ClaimSet, tag AuthType) ClaimSet {
	normalized := make(ClaimSet, 0, len(claims)+1)
	for _, c := range claims {
		if IsReserved(c.Name) || c.Name == ClaimAuthType {
			continue
		}
		normalized = append(normalized, c)
	}
	return append(normalized, Claim{Name: ClaimAuthType, Value: string(tag)})
}

// withoutReserved は予約クレームのみを取り除いたクレーム集合を返す。
func withoutReserved(claims ClaimSet) ClaimSet {
	filtered := make(ClaimSet, 0, len(claims))
	for _, c := range claims {
		if IsReserved(c.Name) {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}
