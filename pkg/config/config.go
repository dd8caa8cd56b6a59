package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/goccy/go-yaml"
)

// EnvConfigFile はYAML設定ファイルのパスを指定する環境変数名。
const EnvConfigFile = "CHATSYNC_CONFIG"

// Config はchatsync全体の設定。
type Config struct {
	// Port はHTTPサーバーの待ち受けポート。
	Port string `yaml:"port"`
	// DBPath はドキュメントストアのSQLiteファイルのパス。
	DBPath string `yaml:"db_path"`
	// JWTSecret は呼び出し元トークンの検証に使用するシークレット。
	JWTSecret string `yaml:"jwt_secret"`
	// CORSOrigins は直接呼び出しエンドポイントへのアクセスを許可するオリジン。
	CORSOrigins []string `yaml:"cors_origins"`
	// Push はプッシュ配信の設定。
	Push PushConfig `yaml:"push"`
	// Expiry はストーリー失効処理の設定。
	Expiry ExpiryConfig `yaml:"expiry"`
	// Notification は通知内容の設定。
	Notification NotificationConfig `yaml:"notification"`
}

// PushConfig はプッシュ配信ゲートウェイの設定。
type PushConfig struct {
	// Endpoint は配信ゲートウェイのベースURL。空の場合はログ出力のみ行う。
	Endpoint string `yaml:"endpoint"`
	// ServerKey は配信ゲートウェイのBearer認証キー。
	ServerKey string `yaml:"server_key"`
	// RPS は1秒あたりの送信上限。
	RPS float64 `yaml:"rps"`
	// Burst は瞬間的に許容する送信数。
	Burst int `yaml:"burst"`
}

// ExpiryConfig はストーリー失効処理のスケジュール設定。
type ExpiryConfig struct {
	// Schedule は実行タイミングのcron式。
	Schedule string `yaml:"schedule"`
	// TimeZone はスケジュールを解釈するタイムゾーン。
	TimeZone string `yaml:"time_zone"`
}

// NotificationConfig は通知の文言と並行度の設定。
type NotificationConfig struct {
	// DefaultSenderName は送信者名を解決できない場合の表示名。
	DefaultSenderName string `yaml:"default_sender_name"`
	// DefaultGroupTitle はグループ名がない場合の通知タイトル。
	DefaultGroupTitle string `yaml:"default_group_title"`
	// TestTitle はテスト通知のタイトル。
	TestTitle string `yaml:"test_title"`
	// TestBody はテスト通知の既定の本文。
	TestBody string `yaml:"test_body"`
	// ClickAction はクライアントの画面遷移に使用するタグ。
	ClickAction string `yaml:"click_action"`
	// FanOutConcurrency は1イベントあたりの同時送信数の上限。
	FanOutConcurrency int `yaml:"fanout_concurrency"`
}

// Default は既定値の設定を返す。
func Default() Config {
	return Config{
		Port:      "8087",
		DBPath:    "/data/chatsync.db",
		JWTSecret: "dev-secret-key",
		Push: PushConfig{
			RPS:   50,
			Burst: 100,
		},
		Expiry: ExpiryConfig{
			Schedule: "0 * * * *",
			TimeZone: "UTC",
		},
		Notification: NotificationConfig{
			DefaultSenderName: "Bilinmeyen Kullanıcı",
			DefaultGroupTitle: "Yeni Grup Mesajı",
			TestTitle:         "Test Notification",
			TestBody:          "Test mesajı",
			ClickAction:       "FLUTTER_NOTIFICATION_CLICK",
			FanOutConcurrency: 16,
		},
	}
}

// Load は .env ファイルと環境変数から設定を読み込む。
func Load() (Config, error) {
	if files := LoadDotEnv(); len(files) > 0 {
		log.Printf("[Config] 読み込んだ.envファイル: %s", strings.Join(files, ", "))
	}
	return LoadFrom(os.LookupEnv)
}

// LoadFrom はlookupで参照できる環境変数から設定を読み込む。
// CHATSYNC_CONFIG が設定されていればYAMLファイルを既定値に重ね、その上に環境変数を適用する。
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup(EnvConfigFile); ok && path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile はYAMLファイルの内容をcfgに重ねる。
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("設定ファイルのパースに失敗: %w", err)
	}
	return nil
}

// applyEnv は環境変数の値をcfgに上書きする。
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PORT":                    &cfg.Port,
		"DB_PATH":                 &cfg.DBPath,
		"JWT_SECRET":              &cfg.JWTSecret,
		"PUSH_ENDPOINT":           &cfg.Push.Endpoint,
		"PUSH_SERVER_KEY":         &cfg.Push.ServerKey,
		"EXPIRY_SCHEDULE":         &cfg.Expiry.Schedule,
		"EXPIRY_TIMEZONE":         &cfg.Expiry.TimeZone,
		"DEFAULT_SENDER_NAME":     &cfg.Notification.DefaultSenderName,
		"DEFAULT_GROUP_TITLE":     &cfg.Notification.DefaultGroupTitle,
		"TEST_NOTIFICATION_TITLE": &cfg.Notification.TestTitle,
		"TEST_NOTIFICATION_BODY":  &cfg.Notification.TestBody,
		"CLICK_ACTION":            &cfg.Notification.ClickAction,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	ints := map[string]*int{
		"PUSH_BURST":         &cfg.Push.Burst,
		"FANOUT_CONCURRENCY": &cfg.Notification.FanOutConcurrency,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s の値が不正です: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup("PUSH_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PUSH_RPS の値が不正です: %w", err)
		}
		cfg.Push.RPS = f
	}
	return nil
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT が空です"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH が空です"))
	}
	if !gronx.IsValid(c.Expiry.Schedule) {
		errs = append(errs, fmt.Errorf("EXPIRY_SCHEDULE %q は不正なcron式です", c.Expiry.Schedule))
	}
	if _, err := time.LoadLocation(c.Expiry.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("EXPIRY_TIMEZONE %q を読み込めません: %w", c.Expiry.TimeZone, err))
	}
	if c.Push.RPS <= 0 {
		errs = append(errs, errors.New("PUSH_RPS は正の値である必要があります"))
	}
	if c.Push.Burst <= 0 {
		errs = append(errs, errors.New("PUSH_BURST は正の値である必要があります"))
	}
	if c.Notification.FanOutConcurrency <= 0 {
		errs = append(errs, errors.New("FANOUT_CONCURRENCY は正の値である必要があります"))
	}
	return errors.Join(errs...)
}

// Location はスケジュールのタイムゾーンを返す。Validate 済みであることを前提とする。
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Expiry.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
