// Package relay はブラウザからのリクエストを上流の生成AI APIへ中継するHTTPサーバーを提供する。
//
// POST /analyze で受け取ったJSONを加工せずに上流へ転送し、上流のJSONレスポンスを
// そのまま返す。上流の認証情報はサーバー側だけが保持し、クライアントには渡さない。
// CORS、セキュリティヘッダー、レート制限、静的ファイル配信はミドルウェアで適用する。
package relay
