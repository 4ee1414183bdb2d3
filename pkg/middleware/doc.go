// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 内部トークンによるBearer認証と信頼タグ（auth_type）による認可ガード、
// リクエストID付与、アクセスログ、パニックリカバリ、CORS設定など、
// 全サービスで共通して使用するミドルウェアを含む。
package middleware
