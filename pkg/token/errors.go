package token

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken はトークンの検証に失敗したことを表す。
	// 署名不正・発行者不一致・audience不一致・期限切れ・形式不正を区別しない。
	ErrInvalidToken = errors.New("トークンの検証に失敗")
	// ErrMisconfigured はトークンの署名・検証に必要な設定が欠けていることを表す。
	// 起動時にのみ返される。
	ErrMisconfigured = errors.New("トークン設定が不完全")
)

// invalid は原因をメッセージに含めた ErrInvalidToken を返す。
// 原因はログ出力のためだけに保持し、errors.Is では ErrInvalidToken のみが一致する。
func invalid(cause error) error {
	return fmt.Errorf("%w: %v", ErrInvalidToken, cause)
}

// misconfigured は欠けている設定項目名を含めた ErrMisconfigured を返す。
func misconfigured(field string) error {
	return fmt.Errorf("%w: %s が設定されていません", ErrMisconfigured, field)
}
