package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimitMessage はレート制限を超えたクライアントに返すメッセージ。
const RateLimitMessage = "リクエストが多すぎます。しばらく待ってから再試行してください"

// RateLimit はクライアントIPごとにリクエスト数を制限するGinミドルウェアを返す。
// windowの間にlimit件を超えたリクエストは429で中断される。
// 残り回数などはX-RateLimit-*ヘッダーで通知する。
func RateLimit(limit int64, window time.Duration) (gin.HandlerFunc, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("レート制限の上限は1以上である必要があります: %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("レート制限のウィンドウは正の値である必要があります: %s", window)
	}

	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: window,
		Limit:  limit,
	})

	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": RateLimitMessage})
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			_ = c.Error(fmt.Errorf("レート制限の判定に失敗: %w", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": InternalErrorMessage})
		}),
	), nil
}
