package notification

import (
	"context"
	"errors"
	"log"

	"github.com/nao1215/chatsync/internal/model"
	"github.com/nao1215/chatsync/pkg/docstore"
)

var (
	// ErrInvalidMessage はメッセージに送信者IDまたは本文がないことを表す。
	ErrInvalidMessage = errors.New("メッセージの送信者または本文がありません")
	// ErrNoRecipients はグループメッセージのメンバーを解決できなかったことを表す。
	ErrNoRecipients = errors.New("グループメンバーが見つかりません")
	// ErrMissingRecipient は個別メッセージに宛先がないことを表す。
	ErrMissingRecipient = errors.New("宛先ユーザーIDがありません")
)

// Labels は解決に失敗した場合の既定の文言。
type Labels struct {
	// DefaultSenderName は送信者名を解決できない場合の表示名。
	DefaultSenderName string
	// DefaultGroupTitle はグループ名がない場合の通知タイトル。
	DefaultGroupTitle string
}

// Payload は1件のメッセージイベントから作られる通知内容。全宛先で共通。
type Payload struct {
	// Title は通知のタイトル。
	Title string
	// Body は通知の本文。
	Body string
	// ChatID はメッセージが属するチャットのID。
	ChatID string
	// MessageID はメッセージのID。
	MessageID string
	// SenderID は送信者のユーザーID。
	SenderID string
	// SenderName は送信者の表示名。
	SenderName string
	// Text はメッセージ本文そのもの。
	Text string
}

// Resolution は宛先解決の結果。
type Resolution struct {
	// Group はグループメッセージであるかを表す。
	Group bool
	// Recipients は通知先のユーザーID。重複せず、送信者を含まない。
	Recipients []string
	// Payload は全宛先に送る通知内容。
	Payload Payload
}

// Resolver はメッセージから通知の宛先と内容を決定する。
type Resolver struct {
	store  docstore.Store
	labels Labels
}

// NewResolver は新しい Resolver を生成する。
func NewResolver(store docstore.Store, labels Labels) *Resolver {
	return &Resolver{store: store, labels: labels}
}

// Resolve はメッセージの宛先と通知内容を決定する。
// グループメッセージではメッセージに埋め込まれたメンバー、チャットの参加者の順に宛先を探す。
func (r *Resolver) Resolve(ctx context.Context, chatID, messageID string, msg model.Message) (Resolution, error) {
	if msg.SenderID == "" || msg.Text == "" {
		return Resolution{}, ErrInvalidMessage
	}

	senderName := r.SenderName(ctx, msg.SenderID)
	payload := Payload{
		ChatID:     chatID,
		MessageID:  messageID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		Text:       msg.Text,
	}

	if !msg.IsGroupMessage {
		if msg.RecipientID == "" {
			return Resolution{}, ErrMissingRecipient
		}
		payload.Title = senderName
		payload.Body = msg.Text
		return Resolution{Recipients: []string{msg.RecipientID}, Payload: payload}, nil
	}

	members := msg.GroupMembers
	var groupName string
	chat, err := r.readChat(ctx, chatID)
	if err != nil {
		log.Printf("[Notification] チャット %s を読み取れません: %v", chatID, err)
	} else {
		groupName = chat.DisplayName()
		if len(members) == 0 {
			members = chat.Participants
		}
	}
	if len(members) == 0 {
		return Resolution{}, ErrNoRecipients
	}

	payload.Title = groupName
	if payload.Title == "" {
		payload.Title = r.labels.DefaultGroupTitle
	}
	payload.Body = senderName + ": " + msg.Text

	return Resolution{
		Group:      true,
		Recipients: excludeSender(members, msg.SenderID),
		Payload:    payload,
	}, nil
}

// SenderName は送信者の表示名を返す。
// ユーザーが存在しない場合や読み取りに失敗した場合は既定のラベルを返す。
func (r *Resolver) SenderName(ctx context.Context, senderID string) string {
	snap, err := r.store.Get(ctx, model.UserRef(senderID))
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			log.Printf("[Notification] 送信者 %s の取得に失敗: %v", senderID, err)
		}
		return r.labels.DefaultSenderName
	}
	var u model.User
	if err := snap.DataTo(&u); err != nil {
		log.Printf("[Notification] 送信者 %s のデコードに失敗: %v", senderID, err)
		return r.labels.DefaultSenderName
	}
	return u.DisplayName(r.labels.DefaultSenderName)
}

// readChat はチャットドキュメントを読み取る。
func (r *Resolver) readChat(ctx context.Context, chatID string) (model.Chat, error) {
	snap, err := r.store.Get(ctx, model.ChatRef(chatID))
	if err != nil {
		return model.Chat{}, err
	}
	var chat model.Chat
	if err := snap.DataTo(&chat); err != nil {
		return model.Chat{}, err
	}
	return chat, nil
}

// excludeSender は空IDと送信者を除き、重複を取り除いたメンバーを元の順序で返す。
func excludeSender(members []string, senderID string) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m == "" || m == senderID {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
