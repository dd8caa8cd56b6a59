package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/nao1215/chatsync/pkg/httpclient"
)

// SendPath は配信ゲートウェイの送信エンドポイントのパス。
const SendPath = "/v1/messages:send"

// ErrUnregistered は配信トークンが無効または登録解除済みであることを表す。
var ErrUnregistered = errors.New("配信トークンが登録されていません")

// Notification は端末に表示される通知。
type Notification struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
}

// Message は1台の端末に送信するプッシュメッセージ。
type Message struct {
	// Token は配信先端末のトークン。
	Token string `json:"token"`
	// Notification は表示用の通知。
	Notification Notification `json:"notification"`
	// Data はクライアントアプリが参照するキー・値のデータ。
	Data map[string]string `json:"data,omitempty"`
}

// Sender はプッシュメッセージを送信する。
type Sender interface {
	// Send はメッセージを1件送信し、配信サービスが採番したメッセージIDを返す。
	Send(ctx context.Context, msg Message) (string, error)
}

// sendRequest は配信ゲートウェイへのリクエストボディ。
type sendRequest struct {
	Message Message `json:"message"`
}

// sendResponse は配信ゲートウェイのレスポンスボディ。
type sendResponse struct {
	Name string `json:"name"`
}

// HTTPSender は配信ゲートウェイにHTTPで送信する Sender。
type HTTPSender struct {
	// client は配信ゲートウェイへのHTTPクライアント。
	client *httpclient.Client
	// limiter は送信レートの制限。nilの場合は制限しない。
	limiter *rate.Limiter
}

var _ Sender = (*HTTPSender)(nil)

// NewHTTPSender は新しい HTTPSender を生成する。
func NewHTTPSender(client *httpclient.Client, limiter *rate.Limiter) *HTTPSender {
	return &HTTPSender{client: client, limiter: limiter}
}

// Send はレート制限を待ってからメッセージを送信する。
// 404または410の応答は ErrUnregistered として返す。
func (s *HTTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.Token == "" {
		return "", ErrUnregistered
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("送信レート制限の待機に失敗: %w", err)
		}
	}

	var resp sendResponse
	if err := s.client.PostJSON(ctx, SendPath, sendRequest{Message: msg}, &resp); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusGone) {
			return "", fmt.Errorf("%w: %v", ErrUnregistered, err)
		}
		return "", fmt.Errorf("プッシュ送信に失敗: %w", err)
	}
	return resp.Name, nil
}

// LogSender は送信内容をログに出力するだけの Sender。
type LogSender struct {
	seq atomic.Int64
}

var _ Sender = (*LogSender)(nil)

// Send はメッセージをログに出力し、連番のメッセージIDを返す。
func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	id := fmt.Sprintf("log-%d", s.seq.Add(1))
	log.Printf("[Push] 送信(ログのみ): id=%s, title=%q, body=%q, data=%v", id, msg.Notification.Title, msg.Notification.Body, msg.Data)
	return id, nil
}
