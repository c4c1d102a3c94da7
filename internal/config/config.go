package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultUpstreamURL は上流の生成AI APIのエンドポイント。
// 認証情報はクエリ文字列として送信時に付与するため、ここには含めない。
const DefaultUpstreamURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"

// DefaultAllowedOrigins はCORSで許可するオリジンの初期値。
// "*" を含むため実質的にすべてのオリジンを許可する（同一LAN上の端末からのアクセス用）。
var DefaultAllowedOrigins = []string{
	"http://127.0.0.1:5500",
	"http://localhost:5500",
	"http://localhost:5173",
	"*",
}

var (
	// ErrMissingAPIKey はAPI_KEYが設定されていないことを表す。
	ErrMissingAPIKey = errors.New("API_KEY が設定されていません")
	// ErrInvalidConfig は設定値の形式が不正であることを表す。
	ErrInvalidConfig = errors.New("設定値が不正です")
)

// Config はリレーサーバーの設定。
type Config struct {
	// APIKey は上流APIに付与する秘密の認証情報。クライアントには決して返さない。
	APIKey string
	// Host はリッスンするアドレス。
	Host string
	// Port はリッスンするポート。
	Port string
	// UpstreamURL は転送先のURL。
	UpstreamURL string
	// AllowedOrigins はCORSで許可するオリジンの一覧。
	AllowedOrigins []string
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのIPまたはCIDR。
	// 空の場合は接続元アドレスをそのままクライアントIPとして扱う。
	TrustedProxies []string
	// RateLimitMax はウィンドウあたりの最大リクエスト数。
	RateLimitMax int64
	// RateLimitWindow はレート制限のウィンドウ幅。
	RateLimitWindow time.Duration
	// StaticDir は静的ファイルを配信するディレクトリ。
	StaticDir string
	// MaxBodyBytes は受け付けるリクエストボディの上限サイズ。
	MaxBodyBytes int64
	// UpstreamTimeout は上流APIへのリクエストのタイムアウト。
	UpstreamTimeout time.Duration
	// ReadTimeout はHTTPサーバーの読み込みタイムアウト。
	ReadTimeout time.Duration
	// WriteTimeout はHTTPサーバーの書き込みタイムアウト。
	WriteTimeout time.Duration
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration
	// LogLevel はログレベル（debug, info, warn, error）。
	LogLevel string
	// LogFormat はログの出力形式（console または json）。
	LogFormat string
}

// Load は .env ファイルと環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv は環境変数のみから設定を読み込み、検証する。
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		APIKey:         strings.TrimSpace(os.Getenv("API_KEY")),
		Host:           getEnvOr("HOST", "0.0.0.0"),
		Port:           getEnvOr("PORT", "3000"),
		UpstreamURL:    getEnvOr("UPSTREAM_URL", DefaultUpstreamURL),
		AllowedOrigins: getListEnvOr("ALLOWED_ORIGINS", DefaultAllowedOrigins),
		TrustedProxies: getListEnvOr("TRUSTED_PROXIES", nil),
		StaticDir:      getEnvOr("STATIC_DIR", "."),
		LogLevel:       getEnvOr("LOG_LEVEL", "info"),
		LogFormat:      getEnvOr("LOG_FORMAT", "console"),
	}

	cfg.RateLimitMax = getIntEnvOr("RATE_LIMIT_MAX", 60, &errs)
	cfg.MaxBodyBytes = getIntEnvOr("MAX_BODY_BYTES", 100*1024, &errs)
	cfg.RateLimitWindow = getDurationEnvOr("RATE_LIMIT_WINDOW", time.Minute, &errs)
	cfg.UpstreamTimeout = getDurationEnvOr("UPSTREAM_TIMEOUT", 30*time.Second, &errs)
	cfg.ReadTimeout = getDurationEnvOr("READ_TIMEOUT", 10*time.Second, &errs)
	cfg.WriteTimeout = getDurationEnvOr("WRITE_TIMEOUT", 60*time.Second, &errs)
	cfg.ShutdownTimeout = getDurationEnvOr("SHUTDOWN_TIMEOUT", 5*time.Second, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。違反したすべての項目をまとめて返す。
func (c *Config) Validate() error {
	var errs []error

	if c.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%w: PORT が空です", ErrInvalidConfig))
	} else if p, err := strconv.Atoi(c.Port); err != nil || p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("%w: PORT=%q はポート番号ではありません", ErrInvalidConfig, c.Port))
	}
	if u, err := url.Parse(c.UpstreamURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("%w: UPSTREAM_URL=%q はHTTP(S)のURLではありません", ErrInvalidConfig, c.UpstreamURL))
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, fmt.Errorf("%w: ALLOWED_ORIGINS が空です", ErrInvalidConfig))
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("%w: TRUSTED_PROXIES の %q はIPアドレスまたはCIDRではありません", ErrInvalidConfig, p))
		}
	}
	if c.RateLimitMax <= 0 {
		errs = append(errs, fmt.Errorf("%w: RATE_LIMIT_MAX は1以上である必要があります", ErrInvalidConfig))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("%w: RATE_LIMIT_WINDOW は正の値である必要があります", ErrInvalidConfig))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: MAX_BODY_BYTES は1以上である必要があります", ErrInvalidConfig))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: UPSTREAM_TIMEOUT は正の値である必要があります", ErrInvalidConfig))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("%w: LOG_FORMAT=%q は console または json を指定してください", ErrInvalidConfig, c.LogFormat))
	}

	return errors.Join(errs...)
}

// Addr はリッスンアドレスを "host:port" 形式で返す。
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// loadDotEnv は指定された .env ファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%s の読み込みに失敗: %w", path, err)
	}
	return nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// getListEnvOr はカンマ区切りの環境変数を取得する。
func getListEnvOr(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return append([]string(nil), defaultValue...)
	}
	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// getIntEnvOr は整数の環境変数を取得する。形式が不正な場合はerrsに追加する。
func getIntEnvOr(key string, defaultValue int64, errs *[]error) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q は整数ではありません", ErrInvalidConfig, key, v))
		return defaultValue
	}
	return n
}

// getDurationEnvOr は時間の環境変数を取得する。
// 整数のみの場合は秒として扱い、それ以外は "1m30s" のような形式を受け付ける。
func getDurationEnvOr(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q は時間の形式ではありません", ErrInvalidConfig, key, v))
		return defaultValue
	}
	return d
}
