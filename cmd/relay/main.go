// 中継サービスのエントリポイント。
// ブラウザからのリクエストを上流の生成AI APIへ転送し、認証情報をクライアントから隠す。
// API_KEY が設定されていない場合はリッスンを開始せずに終了する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/relay/internal/config"
	"github.com/nao1215/relay/internal/relay"
	"github.com/nao1215/relay/pkg/logger"
)

func main() {
	os.Exit(run())
}

// run はサーバーを起動し、終了コードを返す。
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗: %v\n", err)
		return 1
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	server, err := relay.NewServer(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("中継サーバーの初期化に失敗")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		log.Error().Err(err).Msg("中継サーバーが異常終了しました")
		return 1
	}
	return 0
}
