// Package config はリレーサーバーの起動設定を環境変数から読み込む。
//
// 作業ディレクトリに .env ファイルがあれば先に読み込み、実際の環境変数を優先する。
// 上流APIの認証情報（API_KEY）は必須であり、欠けている場合は起動前にエラーを返す。
package config
