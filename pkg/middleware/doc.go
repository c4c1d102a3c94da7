// Package middleware はリレーサーバーの境界を守るGinミドルウェアを提供する。
//
// CORS設定、セキュリティヘッダー、レート制限、静的ファイル配信、
// リクエストID付与、リクエストログ、パニックリカバリを含む。
// いずれもリクエストが転送処理に到達する前に適用される。
package middleware
