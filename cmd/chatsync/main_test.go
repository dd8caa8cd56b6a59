package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nao1215/chatsync/pkg/config"
	"github.com/nao1215/chatsync/pkg/middleware"
)

// testLoad は固定のシークレットを持つ設定を返す。
func testLoad() (config.Config, error) {
	cfg := config.Default()
	cfg.JWTSecret = "cli-secret"
	return cfg, nil
}

// execute はコマンドを実行して標準出力を返す。
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(testLoad)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

// TestTokenCmd はトークン発行サブコマンドを検証する。
func TestTokenCmd(t *testing.T) {
	t.Parallel()

	t.Run("設定のシークレットで署名したトークンを出力すること", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "token", "--user", "svc-trigger", "--email", "ops@example.com")
		if err != nil {
			t.Fatalf("実行に失敗: %v", err)
		}

		var claims middleware.JWTClaims
		_, err = jwt.ParseWithClaims(strings.TrimSpace(out), &claims, func(*jwt.Token) (any, error) {
			return []byte("cli-secret"), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			t.Fatalf("トークンの検証に失敗: %v", err)
		}
		if claims.UserID != "svc-trigger" || claims.Email != "ops@example.com" || claims.Issuer != middleware.Issuer {
			t.Errorf("claims = %+v", claims)
		}
	})

	t.Run("ユーザーIDがなければエラーになること", func(t *testing.T) {
		t.Parallel()
		if _, err := execute(t, "token"); err == nil {
			t.Error("エラーが返されなかった")
		}
	})

	t.Run("有効期間が0以下ならエラーになること", func(t *testing.T) {
		t.Parallel()
		if _, err := execute(t, "token", "--user", "u1", "--ttl", "0s"); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}
