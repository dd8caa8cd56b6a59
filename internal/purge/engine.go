package purge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/nao1215/chatsync/internal/model"
	"github.com/nao1215/chatsync/pkg/docstore"
	"github.com/nao1215/chatsync/pkg/metrics"
)

// PageSize は1回の一括削除で扱うメッセージ数。
const PageSize = 400

// Outcome は1回の削除処理の結果。
type Outcome struct {
	// Eligible はチャットが完全削除の対象だったかを表す。
	Eligible bool
	// Pages は一括削除を実行したページ数。
	Pages int
	// MessagesDeleted は削除したメッセージ数。
	MessagesDeleted int
	// ChatDeleted はチャット本体を削除したかを表す。
	ChatDeleted bool
}

// Engine はチャットの連鎖削除を行う。
type Engine struct {
	store    docstore.Store
	pageSize int
	metrics  *metrics.Metrics
}

// Option は Engine の生成オプション。
type Option func(*Engine)

// WithPageSize はページサイズを変更する。docstore.MaxBatchOps を超える値は無視する。
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= docstore.MaxBatchOps {
			e.pageSize = n
		}
	}
}

// WithMetrics は削除結果を記録するメトリクスを設定する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine は新しい Engine を生成する。
func NewEngine(store docstore.Store, opts ...Option) *Engine {
	e := &Engine{store: store, pageSize: PageSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Purge は書き込み後のチャットの内容を見て、対象であればメッセージとチャット本体を削除する。
// 書き込み後の内容が対象外の場合はストアに一切アクセスしない。
// 対象の場合も削除前に現在のチャットを読み直し、現在も対象である場合のみ削除する。
func (e *Engine) Purge(ctx context.Context, chatID string, after json.RawMessage) (Outcome, error) {
	var out Outcome
	if !eligible(chatID, after) {
		return out, nil
	}

	chatRef := model.ChatRef(chatID)
	current, err := e.store.Get(ctx, chatRef)
	if errors.Is(err, docstore.ErrNotFound) {
		log.Printf("[Purge] チャット %s は削除済みです", chatID)
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("チャット %s の確認に失敗: %w", chatID, err)
	}
	if !eligible(chatID, current.Data) {
		log.Printf("[Purge] チャット %s は現在は削除対象ではないためスキップします", chatID)
		return out, nil
	}
	out.Eligible = true

	if err := e.deleteMessages(ctx, chatID, &out); err != nil {
		return out, err
	}
	if err := e.store.Delete(ctx, chatRef); err != nil {
		return out, fmt.Errorf("チャット %s の削除に失敗: %w", chatID, err)
	}
	out.ChatDeleted = true
	e.metrics.PurgedChat()

	log.Printf("[Purge] チャットを完全削除しました: %s (メッセージ: %d件, %dページ)", chatID, out.MessagesDeleted, out.Pages)
	return out, nil
}

// eligible はチャットの内容が完全削除の対象であるかを返す。内容がない、または読めない場合は対象外。
func eligible(chatID string, data json.RawMessage) bool {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return false
	}
	var chat model.Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		log.Printf("[Purge] チャット %s のデコードに失敗: %v", chatID, err)
		return false
	}
	return chat.Eligible()
}

// deleteMessages はメッセージをドキュメントID順のページ単位で削除する。
// 各ページは直前のページの最後のIDの次から取得するため、並行して書き込まれても取りこぼしや重複がない。
func (e *Engine) deleteMessages(ctx context.Context, chatID string, out *Outcome) error {
	messages := model.MessagesRef(chatID)
	var cursor string
	for {
		q := messages.OrderByID().Limit(e.pageSize)
		if cursor != "" {
			q = q.StartAfter(cursor)
		}
		page, err := e.store.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("チャット %s のメッセージ取得に失敗: %w", chatID, err)
		}
		if len(page) == 0 {
			return nil
		}

		batch := docstore.NewBatch()
		for _, snap := range page {
			batch.Delete(snap.Ref)
		}
		if err := e.store.Commit(ctx, batch); err != nil {
			return fmt.Errorf("チャット %s のメッセージ一括削除に失敗: %w", chatID, err)
		}
		out.Pages++
		out.MessagesDeleted += len(page)
		e.metrics.PurgePage()

		cursor = page[len(page)-1].Ref.ID
		if len(page) < e.pageSize {
			return nil
		}
	}
}
