package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/chatsync/pkg/config"
	"github.com/nao1215/chatsync/pkg/middleware"
)

// newTokenCmd はトリガーAPIの呼び出しに使うJWTを発行するサブコマンドを返す。
// 外部のイベント配送元や運用時の手動起動に渡すトークンを、サービスと同じシークレットで署名する。
func newTokenCmd(load func() (config.Config, error)) *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "トリガーAPI用のJWTを発行する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ttl <= 0 {
				return fmt.Errorf("--ttl は正の値を指定してください: %s", ttl)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			token, err := middleware.GenerateJWT(cfg.JWTSecret, userID, email, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "トークンの主体となるユーザーID（必須）")
	cmd.Flags().StringVar(&email, "email", "", "トークンに含めるメールアドレス")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "トークンの有効期間")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
