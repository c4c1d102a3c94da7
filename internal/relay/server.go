package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nao1215/relay/internal/config"
	"github.com/nao1215/relay/pkg/httpclient"
	"github.com/nao1215/relay/pkg/middleware"
)

// serviceName はヘルスチェックで返すサービス名。
const serviceName = "relay"

// jsonContentType は中継したレスポンスのContent-Type。
const jsonContentType = "application/json; charset=utf-8"

// idleTimeout はキープアライブ接続の待機時間。
const idleTimeout = 120 * time.Second

// クライアントに返すエラーメッセージ。
const (
	errMsgBodyTooLarge = "リクエストボディが大きすぎます"
	errMsgInvalidJSON  = "リクエストボディが不正なJSONです"
)

// Server は中継サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサーバーの設定。
	cfg *config.Config
	// client は上流APIへの転送用クライアント。
	client *httpclient.Client
	// log は構造化ロガー。
	log zerolog.Logger
	// metrics はPrometheusメトリクス。
	metrics *metrics
}

// NewServer は新しい中継サーバーを生成する。
// 上流の認証情報はcfgから受け取り、転送用クライアントだけが保持する。
func NewServer(cfg *config.Config, log zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("設定がnilです")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	client, err := httpclient.New(cfg.UpstreamURL, cfg.APIKey, cfg.UpstreamTimeout)
	if err != nil {
		return nil, fmt.Errorf("上流クライアントの生成に失敗: %w", err)
	}

	corsMW, err := middleware.CORS(cfg.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	staticMW, err := middleware.StaticFiles(cfg.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("静的ファイルディレクトリ %q を開けません: %w", cfg.StaticDir, err)
	}
	rateLimitMW, err := middleware.RateLimit(cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		return nil, err
	}

	m := newMetrics()

	router := gin.New()
	router.HandleMethodNotAllowed = true
	// 信頼するプロキシが無ければX-Forwarded-Forは無視され、接続元アドレスでレート制限される
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("信頼するプロキシの設定に失敗: %w", err)
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(m.middleware())
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecureHeaders())
	router.Use(corsMW)
	// 静的ファイルとプリフライトはレート制限の対象外
	router.Use(staticMW)
	router.Use(rateLimitMW)

	s := &Server{
		router:  router,
		cfg:     cfg,
		client:  client,
		log:     log,
		metrics: m,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はサーバーのHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run は設定されたアドレスでHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("%s でのリッスンに失敗: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve はlnでHTTPリクエストを受け付ける。
// ctxがキャンセルされると新規接続の受付を止め、処理中のリクエストの完了を
// ShutdownTimeoutまで待つ。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().
			Str("addr", ln.Addr().String()).
			Str("upstream", s.client.Endpoint()).
			Msg("中継サーバーを起動しました")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーが停止しました: %w", err)
	case <-ctx.Done():
	}

	s.log.Info().Msg("シャットダウンを開始します")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("グレースフルシャットダウンに失敗: %w", err)
	}

	s.log.Info().Msg("中継サーバーを停止しました")
	return nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.POST("/analyze", s.handleAnalyze())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))
}

// handleAnalyze はリクエストボディを上流APIへ転送し、上流のJSONをそのまま返すハンドラーを返す。
// 上流との通信やレスポンスの解析に失敗した場合は詳細を隠して500を返す。
func (s *Server) handleAnalyze() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := middleware.GetRequestID(c)

		payload, status, err := s.readPayload(c)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("request_id", requestID).
				Msg("リクエストボディを受け付けられません")
			msg := errMsgInvalidJSON
			if status == http.StatusRequestEntityTooLarge {
				msg = errMsgBodyTooLarge
			}
			c.JSON(status, gin.H{"error": msg})
			return
		}

		s.log.Info().
			Str("request_id", requestID).
			RawJSON("payload", payload).
			Msg("クライアントからリクエストを受信")

		start := time.Now()
		resp, err := s.client.PostJSON(c.Request.Context(), payload)
		elapsed := time.Since(start)
		if err != nil {
			s.metrics.observeUpstream(upstreamResult(err), elapsed)
			s.log.Error().
				Err(err).
				Str("request_id", requestID).
				Str("upstream", s.client.Endpoint()).
				Dur("elapsed", elapsed).
				Msg("上流APIへの転送に失敗")
			c.JSON(http.StatusInternalServerError, gin.H{"error": middleware.InternalErrorMessage})
			return
		}
		s.metrics.observeUpstream(upstreamResultOK, elapsed)

		s.log.Info().
			Str("request_id", requestID).
			Int("upstream_status", resp.StatusCode).
			Dur("elapsed", elapsed).
			RawJSON("response", resp.Body).
			Msg("上流APIから応答を受信")

		c.Data(resp.StatusCode, jsonContentType, resp.Body)
	}
}

// readPayload はリクエストボディを読み取り、JSONとして検証する。
// 空のボディは空オブジェクトとして扱う。トップレベルはオブジェクトか配列に限る。
// 失敗した場合は返すべきステータスコードを伴う。
func (s *Server) readPayload(c *gin.Context) (json.RawMessage, int, error) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("上限 %d バイトを超過: %w", tooLarge.Limit, err)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("ボディの読み取りに失敗: %w", err)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return json.RawMessage(`{}`), http.StatusOK, nil
	}
	if raw[0] != '{' && raw[0] != '[' {
		return nil, http.StatusBadRequest, errors.New("トップレベルがオブジェクトでも配列でもありません")
	}
	if !json.Valid(raw) {
		return nil, http.StatusBadRequest, errors.New("JSONの構文が不正です")
	}
	return raw, http.StatusOK, nil
}

// upstreamResult は上流呼び出しのエラーをメトリクスのラベル値に変換する。
func upstreamResult(err error) string {
	switch {
	case errors.Is(err, httpclient.ErrInvalidJSON):
		return upstreamResultInvalidJSON
	case errors.Is(err, httpclient.ErrResponseTooLarge):
		return upstreamResultTooLarge
	case errors.Is(err, httpclient.ErrTransport):
		return upstreamResultTransport
	default:
		return upstreamResultOtherFailure
	}
}
