package purge

import (
	"context"
	"fmt"

	"github.com/nao1215/chatsync/pkg/event"
)

// ChatPath は削除判定のために監視するドキュメントパスのパターン。
const ChatPath = "chats/{chatId}"

// ChatWrittenHandler はチャットの書き込みイベントごとに削除判定を行う。
type ChatWrittenHandler struct {
	engine *Engine
}

// NewChatWrittenHandler は新しい ChatWrittenHandler を生成する。
func NewChatWrittenHandler(engine *Engine) *ChatWrittenHandler {
	return &ChatWrittenHandler{engine: engine}
}

// Handle はチャットの書き込みイベントを処理する。
func (h *ChatWrittenHandler) Handle(ctx context.Context, ev event.DocumentWritten) error {
	chatID := ev.Params["chatId"]
	if _, err := h.engine.Purge(ctx, chatID, ev.After); err != nil {
		return fmt.Errorf("チャット %s の削除処理に失敗: %w", chatID, err)
	}
	return nil
}
