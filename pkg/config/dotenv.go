package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv は .env.local、.env の順にファイルを読み込み、読み込めたファイル名を返す。
// godotenv.Load は設定済みの環境変数を上書きしないため、OSの環境変数が常に優先される。
// 解析できないファイルはログに残して読み飛ばす。
func LoadDotEnv() []string {
	candidates := []string{".env.local", ".env"}
	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("[Config] %s の読み込みに失敗: %v", f, err)
			continue
		}
		loaded = append(loaded, f)
	}
	return loaded
}
