package event

import (
	"maps"
	"testing"
)

// TestMatchPath はパスパターンの照合を検証する。
func TestMatchPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    map[string]string
		ok      bool
	}{
		{
			name:    "ワイルドカードの値を取り出せること",
			pattern: "chats/{chatId}/messages/{messageId}",
			path:    "chats/c1/messages/m1",
			want:    map[string]string{"chatId": "c1", "messageId": "m1"},
			ok:      true,
		},
		{
			name:    "前後のスラッシュを無視すること",
			pattern: "chats/{chatId}",
			path:    "/chats/c1/",
			want:    map[string]string{"chatId": "c1"},
			ok:      true,
		},
		{
			name:    "セグメント数が異なる場合は一致しないこと",
			pattern: "chats/{chatId}",
			path:    "chats/c1/messages/m1",
			ok:      false,
		},
		{
			name:    "固定セグメントが異なる場合は一致しないこと",
			pattern: "chats/{chatId}/messages/{messageId}",
			path:    "chats/c1/members/m1",
			ok:      false,
		},
		{
			name:    "空セグメントには一致しないこと",
			pattern: "chats/{chatId}/messages/{messageId}",
			path:    "chats//messages/m1",
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := MatchPath(tt.pattern, tt.path)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !maps.Equal(got, tt.want) {
				t.Errorf("params = %v, want %v", got, tt.want)
			}
		})
	}
}
