// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、信頼境界として機能する。
// 受信したリクエストの外部トークンを検証し、信頼タグ（auth_type）を付与した
// 内部トークンに差し替えてから、パス接頭辞に応じたバックエンドサービスへ転送する。
// 無効な外部トークンを提示したリクエストは空のボディの401で即座に拒否し、転送しない。
package gateway
