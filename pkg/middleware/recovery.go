package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// PanicResponder はパニックから回復したリクエストへの応答を書き込む。
type PanicResponder func(c *gin.Context, recovered any)

// Recovery はハンドラのパニックを捕捉してスタックトレースを記録するGinミドルウェアを返す。
// 応答は respond が書き込む。nilの場合は {"error": "..."} を500で返す。
// ハンドラが既に応答を書き始めていた場合は何も書き込まない。
func Recovery(respond PanicResponder) gin.HandlerFunc {
	if respond == nil {
		respond = defaultPanicResponse
	}
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Printf("[Recovery] %s %s でパニックが発生: %v\n%s", c.Request.Method, c.FullPath(), r, debug.Stack())
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond(c, r)
			c.Abort()
		}()
		c.Next()
	}
}

// defaultPanicResponse は既定のパニック時の応答。
func defaultPanicResponse(c *gin.Context, _ any) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
}
