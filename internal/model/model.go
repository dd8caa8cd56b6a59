package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/nao1215/chatsync/pkg/docstore"
)

// コレクション名。
const (
	CollectionUsers    = "users"
	CollectionChats    = "chats"
	CollectionMessages = "messages"
	CollectionStories  = "stories"
)

// UserRef はユーザードキュメントへの参照を返す。
func UserRef(userID string) docstore.DocRef {
	return docstore.Collection(CollectionUsers).Doc(userID)
}

// ChatRef はチャットドキュメントへの参照を返す。
func ChatRef(chatID string) docstore.DocRef {
	return docstore.Collection(CollectionChats).Doc(chatID)
}

// MessagesRef はチャット配下のメッセージコレクションへの参照を返す。
func MessagesRef(chatID string) docstore.CollectionRef {
	return ChatRef(chatID).Collection(CollectionMessages)
}

// StoriesRef はストーリーコレクションへの参照を返す。
func StoriesRef() docstore.CollectionRef {
	return docstore.Collection(CollectionStories)
}

// Message はチャット内の1件のメッセージ。作成後は変更されない。
type Message struct {
	// SenderID は送信者のユーザーID。
	SenderID string `json:"senderId"`
	// Text はメッセージ本文。
	Text string `json:"text"`
	// RecipientID は個別メッセージの宛先ユーザーID。
	RecipientID string `json:"recipientId,omitempty"`
	// IsGroupMessage はグループメッセージであるかを表す。
	IsGroupMessage bool `json:"isGroupMessage,omitempty"`
	// GroupMembers はメッセージに埋め込まれたグループメンバー。
	GroupMembers []string `json:"groupMembers,omitempty"`
}

// UnmarshalJSON はメッセージをデコードする。クライアントが書き込む値の型は揃っていないため、
// 文字列でない文字列フィールドは空、true以外の isGroupMessage はfalse、配列でない groupMembers は空として扱う。
// groupMembers の要素のうち文字列でないものは捨てる。
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message{
		SenderID:       stringValue(raw["senderId"]),
		Text:           stringValue(raw["text"]),
		RecipientID:    stringValue(raw["recipientId"]),
		IsGroupMessage: bytes.Equal(bytes.TrimSpace(raw["isGroupMessage"]), []byte("true")),
		GroupMembers:   stringValues(raw["groupMembers"]),
	}
	return nil
}

// stringValue はJSON文字列の値を返す。文字列でない場合は空文字列。
func stringValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// stringValues はJSON配列のうち空でない文字列の要素を返す。配列でない場合はnil。
func stringValues(v json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := stringValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Chat は2人以上の参加者による会話。
type Chat struct {
	// Participants は参加者のユーザーID。
	Participants []string `json:"participants,omitempty"`
	// GroupName はグループの表示名。
	GroupName string `json:"groupName,omitempty"`
	// Name はグループ表示名の旧フィールド。
	Name string `json:"name,omitempty"`
	// DeletedFor は参加者ごとの削除フラグ。値がtrueのもののみ削除済みとみなす。
	DeletedFor map[string]any `json:"deletedFor,omitempty"`
}

// DisplayName はグループの表示名を返す。groupName、name の順に参照する。
func (c Chat) DisplayName() string {
	if c.GroupName != "" {
		return c.GroupName
	}
	return c.Name
}

// Eligible はチャットが完全削除の対象であるかを返す。
// 参加者が2人以上で、全員の削除フラグがtrueの場合のみ対象となる。
func (c Chat) Eligible() bool {
	if c.DeletedFor == nil || len(c.Participants) < 2 {
		return false
	}
	for _, id := range c.Participants {
		if v, ok := c.DeletedFor[id].(bool); !ok || !v {
			return false
		}
	}
	return true
}

// User はアプリのユーザー。このサービスからは読み取りのみ行う。
type User struct {
	// Name は表示名の第1候補。
	Name string `json:"name,omitempty"`
	// DisplayNameField は表示名の第2候補。
	DisplayNameField string `json:"displayName,omitempty"`
	// Username は表示名の第3候補。
	Username string `json:"username,omitempty"`
	// Email はメールアドレス。@より前の部分が表示名の第4候補となる。
	Email string `json:"email,omitempty"`
	// DeliveryToken はプッシュ配信トークン。
	DeliveryToken string `json:"deliveryToken,omitempty"`
	// FCMToken は旧クライアントが保存するプッシュ配信トークン。
	FCMToken string `json:"fcmToken,omitempty"`
}

// nameExtractors は表示名の候補を優先順に並べたもの。順序はクライアントに見える仕様のため変更しないこと。
var nameExtractors = []func(User) string{
	func(u User) string { return u.Name },
	func(u User) string { return u.DisplayNameField },
	func(u User) string { return u.Username },
	func(u User) string {
		local, _, _ := strings.Cut(u.Email, "@")
		return local
	},
}

// DisplayName はユーザーの表示名を返す。候補が全て空の場合はdefaultLabelを返す。
func (u User) DisplayName(defaultLabel string) string {
	for _, extract := range nameExtractors {
		if v := extract(u); v != "" {
			return v
		}
	}
	return defaultLabel
}

// Token はプッシュ配信トークンを返す。deliveryToken を優先し、なければ fcmToken を返す。
func (u User) Token() string {
	if u.DeliveryToken != "" {
		return u.DeliveryToken
	}
	return u.FCMToken
}

// Story は期限付きで公開される投稿。
type Story struct {
	// IsActive は公開中であるかを表す。
	IsActive bool `json:"isActive"`
	// ExpiresAt は公開期限。
	ExpiresAt time.Time `json:"expiresAt"`
	// UpdatedAt は最終更新日時。
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}
