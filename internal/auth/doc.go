// Package auth は認証サービスの内部実装を提供する。
//
// サービス間通信用の service 信頼タグ付き内部トークンの発行と、
// 開発環境向けの外部トークン発行を担当する。
package auth
