package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// configKeys はテストで初期化する環境変数の一覧。
var configKeys = []string{
	"API_KEY", "HOST", "PORT", "UPSTREAM_URL", "ALLOWED_ORIGINS", "TRUSTED_PROXIES",
	"RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "STATIC_DIR", "MAX_BODY_BYTES",
	"UPSTREAM_TIMEOUT", "READ_TIMEOUT", "WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv は実行環境の値がテストに影響しないよう設定キーを空にする。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

// TestFromEnv は環境変数からの設定読み込みを検証する。
func TestFromEnv(t *testing.T) {
	t.Run("API_KEYのみ設定した場合にデフォルト値で読み込めること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "secret-key")

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv()でエラーが発生: %v", err)
		}
		if cfg.APIKey != "secret-key" {
			t.Errorf("APIKey = %q, want %q", cfg.APIKey, "secret-key")
		}
		if cfg.Addr() != "0.0.0.0:3000" {
			t.Errorf("Addr() = %q, want %q", cfg.Addr(), "0.0.0.0:3000")
		}
		if cfg.UpstreamURL != DefaultUpstreamURL {
			t.Errorf("UpstreamURL = %q, want %q", cfg.UpstreamURL, DefaultUpstreamURL)
		}
		if cfg.RateLimitMax != 60 {
			t.Errorf("RateLimitMax = %d, want 60", cfg.RateLimitMax)
		}
		if cfg.RateLimitWindow != time.Minute {
			t.Errorf("RateLimitWindow = %v, want 1m", cfg.RateLimitWindow)
		}
		if cfg.MaxBodyBytes != 100*1024 {
			t.Errorf("MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, 100*1024)
		}
		if cfg.UpstreamTimeout != 30*time.Second {
			t.Errorf("UpstreamTimeout = %v, want 30s", cfg.UpstreamTimeout)
		}
		if len(cfg.AllowedOrigins) != len(DefaultAllowedOrigins) {
			t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, DefaultAllowedOrigins)
		}
		if cfg.StaticDir != "." {
			t.Errorf("StaticDir = %q, want %q", cfg.StaticDir, ".")
		}
		if len(cfg.TrustedProxies) != 0 {
			t.Errorf("TrustedProxies = %v, want empty", cfg.TrustedProxies)
		}
	})

	t.Run("TRUSTED_PROXIESにIPとCIDRを指定できること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "k")
		t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 192.168.0.0/16")

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv()でエラーが発生: %v", err)
		}
		if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "192.168.0.0/16" {
			t.Errorf("TrustedProxies = %v", cfg.TrustedProxies)
		}
	})

	t.Run("TRUSTED_PROXIESが不正な場合はErrInvalidConfigになること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "k")
		t.Setenv("TRUSTED_PROXIES", "proxy.local")

		_, err := FromEnv()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("err = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("API_KEYが未設定の場合にErrMissingAPIKeyが返ること", func(t *testing.T) {
		clearEnv(t)

		_, err := FromEnv()
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Fatalf("err = %v, want ErrMissingAPIKey", err)
		}
	})

	t.Run("API_KEYが空白のみの場合もErrMissingAPIKeyが返ること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "   ")

		_, err := FromEnv()
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Fatalf("err = %v, want ErrMissingAPIKey", err)
		}
	})

	t.Run("環境変数で各値を上書きできること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "k")
		t.Setenv("HOST", "127.0.0.1")
		t.Setenv("PORT", "8080")
		t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example ,")
		t.Setenv("RATE_LIMIT_MAX", "10")
		t.Setenv("RATE_LIMIT_WINDOW", "30")
		t.Setenv("UPSTREAM_TIMEOUT", "1m30s")
		t.Setenv("LOG_FORMAT", "json")

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv()でエラーが発生: %v", err)
		}
		if cfg.Addr() != "127.0.0.1:8080" {
			t.Errorf("Addr() = %q, want %q", cfg.Addr(), "127.0.0.1:8080")
		}
		if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
			t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
		}
		if cfg.RateLimitMax != 10 {
			t.Errorf("RateLimitMax = %d, want 10", cfg.RateLimitMax)
		}
		if cfg.RateLimitWindow != 30*time.Second {
			t.Errorf("RateLimitWindow = %v, want 30s", cfg.RateLimitWindow)
		}
		if cfg.UpstreamTimeout != 90*time.Second {
			t.Errorf("UpstreamTimeout = %v, want 1m30s", cfg.UpstreamTimeout)
		}
		if cfg.LogFormat != "json" {
			t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "json")
		}
	})

	t.Run("整数でない値はErrInvalidConfigになること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "k")
		t.Setenv("RATE_LIMIT_MAX", "sixty")

		_, err := FromEnv()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("err = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("時間の形式でない値はErrInvalidConfigになること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("API_KEY", "k")
		t.Setenv("READ_TIMEOUT", "soon")

		_, err := FromEnv()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("err = %v, want ErrInvalidConfig", err)
		}
	})
}

// TestValidate はValidateを検証する。
func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			APIKey:          "k",
			Host:            "0.0.0.0",
			Port:            "3000",
			UpstreamURL:     DefaultUpstreamURL,
			AllowedOrigins:  []string{"*"},
			RateLimitMax:    60,
			RateLimitWindow: time.Minute,
			MaxBodyBytes:    1024,
			UpstreamTimeout: time.Second,
			LogFormat:       "console",
		}
	}

	t.Run("正しい設定ではエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("不正なUPSTREAM_URLはエラーになること", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.UpstreamURL = "ftp://example.com/x"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("不正なポート番号はエラーになること", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Port = "70000"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("複数の違反がまとめて返ること", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.APIKey = ""
		cfg.RateLimitMax = 0
		err := cfg.Validate()
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("err = %v, want ErrMissingAPIKey を含む", err)
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig を含む", err)
		}
	})
}

// TestLoadDotEnv は.envファイルの読み込みを検証する。
func TestLoadDotEnv(t *testing.T) {
	t.Run("ファイルが存在しない場合はエラーにならないこと", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		if err := loadDotEnv(path); err != nil {
			t.Errorf("loadDotEnv() = %v, want nil", err)
		}
	})

	t.Run(".envの値が読み込まれ既存の環境変数は上書きされないこと", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "9000")
		// 空文字列でも「設定済み」とみなされるため、API_KEYは未定義にしておく
		// 元の値はt.Setenvのクリーンアップで復元される
		if err := os.Unsetenv("API_KEY"); err != nil {
			t.Fatalf("API_KEYの削除に失敗: %v", err)
		}

		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("API_KEY=from-dotenv\nPORT=1234\n"), 0o600); err != nil {
			t.Fatalf(".envの作成に失敗: %v", err)
		}

		if err := loadDotEnv(path); err != nil {
			t.Fatalf("loadDotEnv()でエラーが発生: %v", err)
		}

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv()でエラーが発生: %v", err)
		}
		if cfg.APIKey != "from-dotenv" {
			t.Errorf("APIKey = %q, want %q", cfg.APIKey, "from-dotenv")
		}
		if cfg.Port != "9000" {
			t.Errorf("Port = %q, want %q", cfg.Port, "9000")
		}
	})
}
