// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 各サービスが他のサービスのAPIを直接呼び出す際に使用する。
// 認証サービスから service 信頼タグの内部トークンを取得してキャッシュし、
// すべてのリクエストにBearerトークンとして付与する。
package httpclient
