package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// InternalErrorMessage はクライアントに返す汎用のエラーメッセージ。
// 上流APIやスタックトレースの詳細はクライアントに返さない。
const InternalErrorMessage = "サーバーエラーが発生しました"

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをログに出力し、500エラーを返す。
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("stack", string(debug.Stack())).
					Str("request_id", GetRequestID(c)).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Interface("panic", r).
					Msg("[PANIC] リクエスト処理中にパニックが発生")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": InternalErrorMessage,
				})
			}
		}()
		c.Next()
	}
}
