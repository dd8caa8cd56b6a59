// chatsyncサービスのエントリポイント。
// ドキュメントストアの変更を監視し、新着メッセージの通知、
// 全員が削除したチャットの消去、期限切れストーリーの非公開化を行う。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/chatsync/pkg/config"
)

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd はコマンドツリーを組み立てる。サブコマンドなしで実行するとサービスを起動する。
func newRootCmd(load func() (config.Config, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "チャットの通知配信と削除・失効処理を行うサービス",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(newTokenCmd(load))
	return root
}
