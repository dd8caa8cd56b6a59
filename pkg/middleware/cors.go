package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// 直接呼び出しエンドポイントが受け付けるCORSの値。
const (
	corsAllowMethods = "POST, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type"
	corsMaxAge       = "3600"
)

// originPolicy はクロスオリジンのアクセスを許可するオリジンの集合。
type originPolicy struct {
	any     bool
	origins map[string]struct{}
}

// newOriginPolicy はオリジンの一覧から originPolicy を生成する。"*" は全オリジンを許可する。
func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{any: slices.Contains(origins, "*"), origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		p.origins[o] = struct{}{}
	}
	return p
}

// allows はオリジンが許可されているかを返す。
func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// CORS はクライアントアプリからの直接呼び出しを許可するGinミドルウェアを返す。
// 許可されたオリジンには応答ヘッダーを付与する。プリフライトには204で応答し、
// 許可されていないオリジンからのプリフライトは403で拒否する。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := newOriginPolicy(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		c.Writer.Header().Add("Vary", "Origin")
		allowed := policy.allows(origin)
		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""
		if !preflight {
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Header("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
