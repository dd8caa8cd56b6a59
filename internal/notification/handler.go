package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nao1215/chatsync/internal/model"
	"github.com/nao1215/chatsync/pkg/event"
)

// MessagePath は新着メッセージを監視するドキュメントパスのパターン。
const MessagePath = "chats/{chatId}/messages/{messageId}"

// TestNotificationCall はテスト通知の直接呼び出し名。
const TestNotificationCall = "sendChatTestNotification"

// MessageCreatedHandler は新着メッセージの作成イベントを処理し、宛先に通知を送信する。
type MessageCreatedHandler struct {
	resolver   *Resolver
	dispatcher *Dispatcher
}

// NewMessageCreatedHandler は新しい MessageCreatedHandler を生成する。
func NewMessageCreatedHandler(resolver *Resolver, dispatcher *Dispatcher) *MessageCreatedHandler {
	return &MessageCreatedHandler{resolver: resolver, dispatcher: dispatcher}
}

// Handle はメッセージ作成イベントを処理する。
// 入力データの不備は記録してスキップし、エラーとしては返さない。
func (h *MessageCreatedHandler) Handle(ctx context.Context, ev event.DocumentCreated) error {
	chatID := ev.Params["chatId"]
	messageID := ev.Params["messageId"]
	log.Printf("[Notification] 新着メッセージ: %s (chat: %s)", messageID, chatID)

	if len(ev.Value) == 0 || bytes.Equal(ev.Value, []byte("null")) {
		log.Printf("[Notification] メッセージデータがありません: %s", ev.Path)
		return nil
	}
	var msg model.Message
	if err := json.Unmarshal(ev.Value, &msg); err != nil {
		log.Printf("[Notification] メッセージ %s のデコードに失敗: %v", messageID, err)
		return nil
	}

	res, err := h.resolver.Resolve(ctx, chatID, messageID, msg)
	switch {
	case errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrNoRecipients),
		errors.Is(err, ErrMissingRecipient):
		log.Printf("[Notification] 通知をスキップします (message: %s): %v", messageID, err)
		return nil
	case err != nil:
		return fmt.Errorf("宛先の解決に失敗: %w", err)
	}

	results := h.dispatcher.FanOut(ctx, res.Recipients, res.Payload)
	sum := Summarize(results)
	if res.Group {
		log.Printf("[Notification] グループ通知を処理しました: %d名 (送信: %d, スキップ: %d, 失敗: %d)",
			len(results), sum[StatusDelivered], sum[StatusSkipped], sum[StatusFailed])
	} else {
		log.Printf("[Notification] 個別通知を処理しました: %s (%s)", res.Recipients[0], results[0].Status)
	}
	return nil
}

// TestNotificationRequest はテスト通知の呼び出し引数。
type TestNotificationRequest struct {
	// TargetUserID は通知先のユーザーID。
	TargetUserID string `json:"targetUserId"`
	// Message は通知本文。空の場合は既定の本文を使う。
	Message string `json:"message"`
	// ChatID は通知に紐付けるチャットのID。
	ChatID string `json:"chatId"`
}

// TestNotificationResponse はテスト通知の呼び出し結果。
type TestNotificationResponse struct {
	// Success は呼び出しが受け付けられたかを表す。
	Success bool `json:"success"`
	// Status は配信結果。
	Status Status `json:"status"`
	// Reason はスキップ・失敗の理由。
	Reason string `json:"reason,omitempty"`
}

// TestNotificationHandler は任意のユーザーにテスト通知を送信する直接呼び出しを処理する。
type TestNotificationHandler struct {
	resolver   *Resolver
	dispatcher *Dispatcher
	title      string
	body       string
	now        func() time.Time
}

// NewTestNotificationHandler は新しい TestNotificationHandler を生成する。
// titleは通知タイトル、bodyは本文が指定されなかった場合の既定値。
func NewTestNotificationHandler(resolver *Resolver, dispatcher *Dispatcher, title, body string) *TestNotificationHandler {
	return &TestNotificationHandler{
		resolver:   resolver,
		dispatcher: dispatcher,
		title:      title,
		body:       body,
		now:        time.Now,
	}
}

// Call はテスト通知を送信する。
// 呼び出し元、targetUserId、chatId のいずれかが欠けている場合は送信せずに拒否する。
func (h *TestNotificationHandler) Call(ctx context.Context, req event.CallableRequest) (any, error) {
	callerID := req.CallerID()
	if callerID == "" {
		return nil, fmt.Errorf("%w: 呼び出し元の認証情報がありません", event.ErrUnauthenticated)
	}

	var args TestNotificationRequest
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &args); err != nil {
			return nil, fmt.Errorf("%w: 引数の形式が不正です", event.ErrInvalidArgument)
		}
	}
	if args.TargetUserID == "" || args.ChatID == "" {
		return nil, fmt.Errorf("%w: 必須パラメータが不足しています", event.ErrInvalidArgument)
	}

	body := args.Message
	if body == "" {
		body = h.body
	}
	p := Payload{
		Title:      h.title,
		Body:       body,
		ChatID:     args.ChatID,
		MessageID:  fmt.Sprintf("test_%d", h.now().UnixMilli()),
		SenderID:   callerID,
		SenderName: h.resolver.SenderName(ctx, callerID),
		Text:       body,
	}

	res := h.dispatcher.Dispatch(ctx, args.TargetUserID, p)
	log.Printf("[Notification] テスト通知を処理しました: %s (%s)", args.TargetUserID, res.Status)
	return TestNotificationResponse{Success: true, Status: res.Status, Reason: res.Reason}, nil
}
