package event

import (
	"encoding/json"
	"testing"
	"time"
)

// TestNew はNew関数でイベントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("DocumentCreatedでイベントを正常に生成できること", func(t *testing.T) {
		t.Parallel()

		data := DocumentCreated{
			Path:   "chats/c1/messages/m1",
			Params: map[string]string{"chatId": "c1", "messageId": "m1"},
			Value:  json.RawMessage(`{"senderId":"u1","text":"hi"}`),
		}

		before := time.Now().UTC()
		ev, err := New(KindDocumentCreated, data.Path, data)
		after := time.Now().UTC()

		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if ev.ID == "" {
			t.Error("IDが空文字列")
		}
		if ev.Kind != KindDocumentCreated {
			t.Errorf("Kind = %q, want %q", ev.Kind, KindDocumentCreated)
		}
		if ev.Source != "chats/c1/messages/m1" {
			t.Errorf("Source = %q, want %q", ev.Source, "chats/c1/messages/m1")
		}
		if ev.CreatedAt.Before(before) || ev.CreatedAt.After(after) {
			t.Errorf("CreatedAt = %v, 期待する範囲: [%v, %v]", ev.CreatedAt, before, after)
		}

		decoded, err := DecodeData[DocumentCreated](ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if decoded.Params["messageId"] != "m1" {
			t.Errorf("Params[messageId] = %q, want %q", decoded.Params["messageId"], "m1")
		}
	})

	t.Run("シリアライズできないデータでエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := New(KindCallable, "sendChatTestNotification", make(chan int))
		if err == nil {
			t.Fatal("エラーが返されるべきだがnilが返された")
		}
	})

	t.Run("連続して生成したイベントのIDが異なること", func(t *testing.T) {
		t.Parallel()

		ev1, err := New(KindTimerFired, "expireStories", TimerFired{Schedule: "0 * * * *"})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		ev2, err := New(KindTimerFired, "expireStories", TimerFired{Schedule: "0 * * * *"})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if ev1.ID == ev2.ID {
			t.Errorf("IDが重複している: %q", ev1.ID)
		}
	})
}

// TestDecodeData はDecodeData関数のデシリアライズを検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	t.Run("DocumentWrittenの削除イベントでAfterが空になること", func(t *testing.T) {
		t.Parallel()

		ev := &Envelope{
			Kind: KindDocumentWritten,
			Data: json.RawMessage(`{"path":"chats/c1","before":{"deletedFor":{}}}`),
		}
		got, err := DecodeData[DocumentWritten](ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if len(got.After) != 0 {
			t.Errorf("After = %s, want empty", got.After)
		}
		if len(got.Before) == 0 {
			t.Error("Beforeが空")
		}
	})

	t.Run("不正なJSONでエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		ev := &Envelope{Data: json.RawMessage(`{invalid`)}
		if _, err := DecodeData[TimerFired](ev); err == nil {
			t.Fatal("エラーが返されるべきだがnilが返された")
		}
	})
}

// TestCallerID は呼び出し元ユーザーIDの取得を検証する。
func TestCallerID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  CallableRequest
		want string
	}{
		{name: "認証情報がない場合は空文字列を返すこと", req: CallableRequest{}, want: ""},
		{name: "認証情報のUIDを返すこと", req: CallableRequest{Auth: &Auth{UID: "u1"}}, want: "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.req.CallerID(); got != tt.want {
				t.Errorf("CallerID() = %q, want %q", got, tt.want)
			}
		})
	}
}
