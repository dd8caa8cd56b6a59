package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/chatsync/internal/expiry"
	"github.com/nao1215/chatsync/internal/notification"
	"github.com/nao1215/chatsync/internal/purge"
	"github.com/nao1215/chatsync/internal/trigger"
	"github.com/nao1215/chatsync/pkg/config"
	"github.com/nao1215/chatsync/pkg/docstore"
	"github.com/nao1215/chatsync/pkg/httpclient"
	"github.com/nao1215/chatsync/pkg/metrics"
	"github.com/nao1215/chatsync/pkg/push"
)

// shutdownTimeout はシャットダウン時に処理中のリクエストを待つ時間。
const shutdownTimeout = 15 * time.Second

// serve は依存関係を組み立ててサービスを起動し、終了シグナルを受けるまで待機する。
func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := docstore.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("ドキュメントストアのクローズに失敗: %v", err)
		}
	}()

	m := metrics.New()
	resolver := notification.NewResolver(store, notification.Labels{
		DefaultSenderName: cfg.Notification.DefaultSenderName,
		DefaultGroupTitle: cfg.Notification.DefaultGroupTitle,
	})
	dispatcher := notification.NewDispatcher(store, newSender(cfg.Push),
		notification.WithClickAction(cfg.Notification.ClickAction),
		notification.WithConcurrency(cfg.Notification.FanOutConcurrency),
		notification.WithMetrics(m),
	)
	engine := purge.NewEngine(store, purge.WithMetrics(m))
	sweeper := expiry.NewSweeper(store, expiry.WithMetrics(m))

	adapter := trigger.NewAdapter(trigger.WithMetrics(m))
	adapter.OnDocumentCreated(notification.MessagePath, notification.NewMessageCreatedHandler(resolver, dispatcher))
	adapter.OnDocumentWritten(purge.ChatPath, purge.NewChatWrittenHandler(engine))
	adapter.OnSchedule(expiry.ScheduleName, expiry.NewTimerHandler(sweeper))
	adapter.OnCall(notification.TestNotificationCall, notification.NewTestNotificationHandler(
		resolver, dispatcher, cfg.Notification.TestTitle, cfg.Notification.TestBody,
	))
	store.Subscribe(adapter)

	scheduler := trigger.NewScheduler(adapter, cfg.Location())
	if err := scheduler.Add(expiry.ScheduleName, cfg.Expiry.Schedule); err != nil {
		return err
	}
	scheduler.Start(ctx)

	server := trigger.NewServer(adapter, trigger.ServerConfig{
		Port:        cfg.Port,
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     m,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Printf("chatsyncを起動します: :%s", cfg.Port)
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		scheduler.Stop()
		adapter.Wait()
		return err
	case <-ctx.Done():
	}

	log.Printf("シャットダウンを開始します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTPサーバーの停止に失敗: %v", err)
	}
	scheduler.Stop()
	adapter.Wait()
	log.Printf("chatsyncを停止しました")
	return nil
}

// newSender はプッシュ配信の送信先を生成する。エンドポイント未設定時はログ出力のみ行う。
func newSender(cfg config.PushConfig) push.Sender {
	if cfg.Endpoint == "" {
		log.Printf("プッシュ配信のエンドポイントが未設定のため、通知はログ出力のみ行います")
		return &push.LogSender{}
	}
	client := httpclient.New(cfg.Endpoint, httpclient.WithBearerToken(cfg.ServerKey))
	return push.NewHTTPSender(client, rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst))
}
