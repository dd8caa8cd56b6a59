// Package config はchatsyncの設定を読み込む。
//
// 優先順位は 環境変数 > .env.local > .env > CHATSYNC_CONFIG で指定したYAMLファイル > 既定値。
package config
