package token

import "strings"

// ClaimAuthType は信頼タグを格納するクレーム名。
// 内部トークンには必ずちょうど1つ含まれる。
const ClaimAuthType = "auth_type"

// AuthType はリクエストの信頼区分を表す信頼タグ。
type AuthType string

const (
	// AuthTypeService はサービス間通信で発行されたトークンを表す。
	AuthTypeService AuthType = "service"
	// AuthTypeUser は外部IDプロバイダで認証済みのユーザーを表す。
	AuthTypeUser AuthType = "user"
	// AuthTypeAnonymous は資格情報を提示しなかったリクエストを表す。
	AuthTypeAnonymous AuthType = "anonymous"
	// AuthTypeUserOrService は認可ガード専用の複合指定で、user と service の両方を許可する。
	// トークンに載ることはない。
	AuthTypeUserOrService AuthType = "user_or_service"
)

// String は信頼タグの文字列表現を返す。
func (a AuthType) String() string {
	return string(a)
}

// IsTrustTag はトークンに載せられる信頼タグかどうかを返す。
// 複合指定の AuthTypeUserOrService は false となる。
func (a AuthType) IsTrustTag() bool {
	switch a {
	case AuthTypeService, AuthTypeUser, AuthTypeAnonymous:
		return true
	default:
		return false
	}
}

// ParseAuthType はクレーム値を信頼タグに変換する。大文字小文字は区別しない。
// 未知の値の場合は false を返す。
func ParseAuthType(v string) (AuthType, bool) {
	a := AuthType(strings.ToLower(v))
	if !a.IsTrustTag() {
		return "", false
	}
	return a, true
}
