package notification

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/chatsync/pkg/event"
)

// newTestHandlers はテスト用のストア・送信器・ハンドラを組み立てる。
func newTestHandlers(t *testing.T) (*faultyStore, *recordingSender, *MessageCreatedHandler, *TestNotificationHandler) {
	t.Helper()
	store := &faultyStore{Store: openTestStore(t), failGet: map[string]bool{}}
	sender := &recordingSender{}
	resolver := NewResolver(store, testLabels)
	dispatcher := NewDispatcher(store, sender)
	return store, sender,
		NewMessageCreatedHandler(resolver, dispatcher),
		NewTestNotificationHandler(resolver, dispatcher, "Test Notification", "Test mesajı")
}

// messageEvent はメッセージ作成イベントを組み立てる。
func messageEvent(t *testing.T, chatID, messageID string, value any) event.DocumentCreated {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("メッセージのシリアライズに失敗: %v", err)
	}
	path := "chats/" + chatID + "/messages/" + messageID
	params, _ := event.MatchPath(MessagePath, path)
	return event.DocumentCreated{Path: path, Params: params, Value: raw}
}

// TestMessageCreatedHandler はメッセージ作成イベントの処理を検証する。
func TestMessageCreatedHandler(t *testing.T) {
	t.Parallel()

	t.Run("グループメッセージを送信者以外の全メンバーに1回ずつ送信すること", func(t *testing.T) {
		t.Parallel()

		store, sender, h, _ := newTestHandlers(t)
		for _, id := range []string{"S", "A", "B", "C"} {
			seedUser(t, store, id, map[string]any{"deliveryToken": "tok-" + id})
		}
		seedChat(t, store, "c1", map[string]any{"participants": []any{"S", "A", "B", "C", "A"}})

		err := h.Handle(t.Context(), messageEvent(t, "c1", "m1", map[string]any{
			"senderId": "S", "text": "selam", "isGroupMessage": true,
		}))
		if err != nil {
			t.Fatalf("Handle()でエラーが発生: %v", err)
		}
		if want := []string{"tok-A", "tok-B", "tok-C"}; !slices.Equal(sender.tokens(), want) {
			t.Errorf("送信先 = %v, want %v", sender.tokens(), want)
		}
	})

	t.Run("送信者を読み取れなくても既定のラベルで送信すること", func(t *testing.T) {
		t.Parallel()

		store, sender, h, _ := newTestHandlers(t)
		seedUser(t, store, "S", map[string]any{"name": "Ali"})
		seedUser(t, store, "R", map[string]any{"deliveryToken": "tok-R"})
		store.failGet["users/S"] = true

		if err := h.Handle(t.Context(), messageEvent(t, "c1", "m1", map[string]any{
			"senderId": "S", "text": "selam", "recipientId": "R",
		})); err != nil {
			t.Fatalf("Handle()でエラーが発生: %v", err)
		}
		msgs := sender.messages()
		if len(msgs) != 1 {
			t.Fatalf("送信数 = %d, want 1", len(msgs))
		}
		if msgs[0].Notification.Title != "Bilinmeyen Kullanıcı" {
			t.Errorf("Title = %q, want %q", msgs[0].Notification.Title, "Bilinmeyen Kullanıcı")
		}
		if msgs[0].Data["messageId"] != "m1" || msgs[0].Data["chatId"] != "c1" {
			t.Errorf("Data = %v", msgs[0].Data)
		}
	})

	t.Run("任意フィールドの型が不正でも個別メッセージとして送信すること", func(t *testing.T) {
		t.Parallel()

		store, sender, h, _ := newTestHandlers(t)
		seedUser(t, store, "R", map[string]any{"deliveryToken": "tok-R"})

		if err := h.Handle(t.Context(), messageEvent(t, "c1", "m1", map[string]any{
			"senderId": "S", "text": "selam", "recipientId": "R",
			"isGroupMessage": "false", "groupMembers": "A,B",
		})); err != nil {
			t.Fatalf("Handle()でエラーが発生: %v", err)
		}
		if want := []string{"tok-R"}; !slices.Equal(sender.tokens(), want) {
			t.Errorf("送信先 = %v, want %v", sender.tokens(), want)
		}
	})

	skipTests := []struct {
		name  string
		value any
	}{
		{name: "宛先のない個別メッセージでは送信しないこと", value: map[string]any{"senderId": "S", "text": "x"}},
		{name: "本文のないメッセージでは送信しないこと", value: map[string]any{"senderId": "S", "recipientId": "R"}},
		{name: "メッセージデータがnullの場合は送信しないこと", value: nil},
		{name: "メンバーを解決できないグループメッセージでは送信しないこと", value: map[string]any{"senderId": "S", "text": "x", "isGroupMessage": true}},
		{name: "送信者IDが文字列でないメッセージでは送信しないこと", value: map[string]any{"senderId": 42, "text": "x", "recipientId": "R"}},
		{name: "オブジェクトでないメッセージでは送信しないこと", value: "selam"},
	}
	for _, tt := range skipTests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, sender, h, _ := newTestHandlers(t)
			seedUser(t, store, "R", map[string]any{"deliveryToken": "tok-R"})

			if err := h.Handle(t.Context(), messageEvent(t, "c1", "m1", tt.value)); err != nil {
				t.Errorf("Handle()はエラーを返すべきでない: %v", err)
			}
			if n := len(sender.messages()); n != 0 {
				t.Errorf("送信数 = %d, want 0", n)
			}
		})
	}
}

// TestTestNotificationHandler はテスト通知の直接呼び出しを検証する。
func TestTestNotificationHandler(t *testing.T) {
	t.Parallel()

	t.Run("既定の本文とテスト用メッセージIDで送信すること", func(t *testing.T) {
		t.Parallel()

		store, sender, _, h := newTestHandlers(t)
		seedUser(t, store, "T", map[string]any{"deliveryToken": "tok-T"})
		seedUser(t, store, "caller", map[string]any{"username": "admin"})
		h.now = func() time.Time { return time.UnixMilli(1760000000123) }

		out, err := h.Call(t.Context(), event.CallableRequest{
			Name: TestNotificationCall,
			Auth: &event.Auth{UID: "caller"},
			Data: json.RawMessage(`{"targetUserId":"T","chatId":"c1"}`),
		})
		if err != nil {
			t.Fatalf("Call()でエラーが発生: %v", err)
		}
		resp, ok := out.(TestNotificationResponse)
		if !ok || !resp.Success || resp.Status != StatusDelivered {
			t.Errorf("応答 = %+v", out)
		}

		msgs := sender.messages()
		if len(msgs) != 1 {
			t.Fatalf("送信数 = %d, want 1", len(msgs))
		}
		if msgs[0].Notification.Title != "Test Notification" || msgs[0].Notification.Body != "Test mesajı" {
			t.Errorf("Notification = %+v", msgs[0].Notification)
		}
		if msgs[0].Data["messageId"] != "test_1760000000123" {
			t.Errorf("messageId = %q, want %q", msgs[0].Data["messageId"], "test_1760000000123")
		}
		if msgs[0].Data["senderId"] != "caller" || msgs[0].Data["senderName"] != "admin" {
			t.Errorf("Data = %v", msgs[0].Data)
		}
	})

	t.Run("宛先にトークンがなくても成功として状態を返すこと", func(t *testing.T) {
		t.Parallel()

		_, sender, _, h := newTestHandlers(t)
		out, err := h.Call(t.Context(), event.CallableRequest{
			Auth: &event.Auth{UID: "caller"},
			Data: json.RawMessage(`{"targetUserId":"nobody","chatId":"c1","message":"hey"}`),
		})
		if err != nil {
			t.Fatalf("Call()でエラーが発生: %v", err)
		}
		resp := out.(TestNotificationResponse)
		if !resp.Success || resp.Status != StatusSkipped || resp.Reason != ReasonRecipientNotFound {
			t.Errorf("応答 = %+v", resp)
		}
		if len(sender.messages()) != 0 {
			t.Error("送信されるべきでない")
		}
	})

	rejectTests := []struct {
		name string
		req  event.CallableRequest
		want error
	}{
		{
			name: "呼び出し元がない場合は拒否すること",
			req:  event.CallableRequest{Data: json.RawMessage(`{"targetUserId":"T","chatId":"c1"}`)},
			want: event.ErrUnauthenticated,
		},
		{
			name: "targetUserIdがない場合は拒否すること",
			req:  event.CallableRequest{Auth: &event.Auth{UID: "caller"}, Data: json.RawMessage(`{"chatId":"c1"}`)},
			want: event.ErrInvalidArgument,
		},
		{
			name: "chatIdがない場合は拒否すること",
			req:  event.CallableRequest{Auth: &event.Auth{UID: "caller"}, Data: json.RawMessage(`{"targetUserId":"T"}`)},
			want: event.ErrInvalidArgument,
		},
		{
			name: "引数がない場合は拒否すること",
			req:  event.CallableRequest{Auth: &event.Auth{UID: "caller"}},
			want: event.ErrInvalidArgument,
		},
		{
			name: "引数の形式が不正な場合は拒否すること",
			req:  event.CallableRequest{Auth: &event.Auth{UID: "caller"}, Data: json.RawMessage(`[1,2]`)},
			want: event.ErrInvalidArgument,
		},
	}
	for _, tt := range rejectTests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, sender, _, h := newTestHandlers(t)
			seedUser(t, store, "T", map[string]any{"deliveryToken": "tok-T"})

			_, err := h.Call(t.Context(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(sender.messages()) != 0 {
				t.Error("拒否された呼び出しで送信が行われた")
			}
		})
	}
}
