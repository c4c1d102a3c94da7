// Package httpclient は上流の生成AI APIへJSONを転送するHTTPクライアントを提供する。
//
// 認証情報はクエリパラメータ "key" としてクライアント内部で付与するため、
// 呼び出し側やブラウザに認証情報が露出することはない。
// ボディは加工せずにそのまま送信し、レスポンスはJSONとして妥当であることだけを検証する。
package httpclient
