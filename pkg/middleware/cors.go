package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSAllowedMethods はクロスオリジンで許可するHTTPメソッド。
var CORSAllowedMethods = []string{http.MethodGet, http.MethodPost}

// CORSAllowedHeaders はクロスオリジンで許可するリクエストヘッダー。
var CORSAllowedHeaders = []string{"Content-Type", "Authorization"}

// CORS は指定されたオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// 許可リストに "*" が含まれる場合はすべてのオリジンを許可する。
// 許可されていないオリジンからのリクエストは403で中断され、プリフライトは204で応答する。
func CORS(allowedOrigins []string) (gin.HandlerFunc, error) {
	config := cors.Config{
		AllowMethods: CORSAllowedMethods,
		AllowHeaders: CORSAllowedHeaders,
		MaxAge:       24 * time.Hour,
	}

	// "*" と個別オリジンを同時に指定するとgin-contrib/corsは設定の競合としてpanicするため、
	// ここでどちらか一方に正規化する
	if slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("CORS設定が不正: %w", err)
	}
	return cors.New(config), nil
}
