package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// newTestToken はテスト用の有効なトークンを生成する。
func newTestToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := GenerateJWT(testSecret, userID, userID+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
	}
	return token
}

// newAuthRouter はミドルウェアを適用し、取得した呼び出し元を返すルーターを生成する。
func newAuthRouter(t *testing.T, mw gin.HandlerFunc) *gin.Engine {
	t.Helper()
	router := gin.New()
	router.Use(mw)
	router.POST("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "email": GetEmail(c)})
	})
	return router
}

// doAuthRequest はAuthorizationヘッダー付きでリクエストを送信する。
func doAuthRequest(t *testing.T, router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/whoami", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestGenerateJWT はGenerateJWT関数を検証する。
func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("正常にJWTトークンを生成できること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr := newTestToken(t, "user-123")

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		if err != nil || !token.Valid {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if claims.UserID != "user-123" {
			t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
		}
		if claims.Subject != "user-123" {
			t.Errorf("Subject = %q, want %q", claims.Subject, "user-123")
		}
		if claims.Issuer != Issuer {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, Issuer)
		}
		if claims.ExpiresAt.Time.Before(before.Add(time.Hour - time.Minute)) {
			t.Errorf("ExpiresAt = %v, 期待より早い", claims.ExpiresAt.Time)
		}
	})
}

// TestJWTAuth はJWTAuthミドルウェアを検証する。
func TestJWTAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンで呼び出し元が設定されること", func(t *testing.T) {
		t.Parallel()

		w := doAuthRequest(t, newAuthRouter(t, JWTAuth(testSecret)), "Bearer "+newTestToken(t, "u1"))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["user_id"] != "u1" {
			t.Errorf("user_id = %q, want %q", body["user_id"], "u1")
		}
		if body["email"] != "u1@example.com" {
			t.Errorf("email = %q, want %q", body["email"], "u1@example.com")
		}
	})

	tests := []struct {
		name   string
		header string
	}{
		{name: "Authorizationヘッダーがない場合401を返すこと", header: ""},
		{name: "Bearer形式でない場合401を返すこと", header: "Basic abc"},
		{name: "署名が不正なトークンで401を返すこと", header: "Bearer invalid.token.value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := doAuthRequest(t, newAuthRouter(t, JWTAuth(testSecret)), tt.header)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}

	t.Run("別のシークレットで署名されたトークンで401を返すこと", func(t *testing.T) {
		t.Parallel()

		token, err := GenerateJWT("other-secret", "u1", "", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		w := doAuthRequest(t, newAuthRouter(t, JWTAuth(testSecret)), "Bearer "+token)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("有効期限切れのトークンで401を返すこと", func(t *testing.T) {
		t.Parallel()

		token, err := GenerateJWT(testSecret, "u1", "", -time.Minute)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		w := doAuthRequest(t, newAuthRouter(t, JWTAuth(testSecret)), "Bearer "+token)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestOptionalJWTAuth はOptionalJWTAuthミドルウェアを検証する。
func TestOptionalJWTAuth(t *testing.T) {
	t.Parallel()

	t.Run("Authorizationヘッダーがない場合は未認証のまま通過すること", func(t *testing.T) {
		t.Parallel()

		w := doAuthRequest(t, newAuthRouter(t, OptionalJWTAuth(testSecret)), "")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["user_id"] != "" {
			t.Errorf("user_id = %q, want empty", body["user_id"])
		}
	})

	t.Run("有効なトークンで呼び出し元が設定されること", func(t *testing.T) {
		t.Parallel()

		w := doAuthRequest(t, newAuthRouter(t, OptionalJWTAuth(testSecret)), "Bearer "+newTestToken(t, "u2"))
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["user_id"] != "u2" {
			t.Errorf("user_id = %q, want %q", body["user_id"], "u2")
		}
	})

	t.Run("不正なトークンでUNAUTHENTICATEDを返すこと", func(t *testing.T) {
		t.Parallel()

		w := doAuthRequest(t, newAuthRouter(t, OptionalJWTAuth(testSecret)), "Bearer broken")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		var body struct {
			Error struct {
				Status string `json:"status"`
			} `json:"error"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body.Error.Status != "UNAUTHENTICATED" {
			t.Errorf("status = %q, want %q", body.Error.Status, "UNAUTHENTICATED")
		}
	})
}
