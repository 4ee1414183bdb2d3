// Package catalog は商品カタログサービスの内部実装を提供する。
//
// 商品の参照は匿名でも許可し、登録はユーザーまたはサービス、削除はサービスのみに許可する。
// 認可は内部トークンの信頼タグ（auth_type）で判断する。
package catalog
