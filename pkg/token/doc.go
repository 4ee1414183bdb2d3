// Package token は外部トークンの検証と内部トークンの発行・検証を提供する。
//
// 外部IDプロバイダが発行したJWTを検証してクレームを取り出し、
// 予約クレームを取り除いて信頼タグ（auth_type）を付け直した上で、
// 内部用の秘密鍵で短命なJWTとして再署名する。バックエンドサービスは
// 内部トークンの信頼タグのみを根拠に認可判断を行う。
//
// 設定値は起動時に一度だけ読み込まれ、以降は変更されない。
// 本パッケージの型はすべて並行利用に対して安全である。
package token
