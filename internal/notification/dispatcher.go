package notification

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/chatsync/internal/model"
	"github.com/nao1215/chatsync/pkg/docstore"
	"github.com/nao1215/chatsync/pkg/metrics"
	"github.com/nao1215/chatsync/pkg/push"
)

// Status は宛先1件ごとの配信結果。
type Status string

const (
	// StatusDelivered はプッシュ配信サービスが送信を受け付けたことを表す。
	StatusDelivered Status = "delivered"
	// StatusSkipped は宛先の状態により送信しなかったことを表す。
	StatusSkipped Status = "skipped"
	// StatusFailed は送信または宛先の取得に失敗したことを表す。
	StatusFailed Status = "failed"
)

// スキップ・失敗の理由。
const (
	ReasonRecipientNotFound = "recipient not found"
	ReasonNoDeliveryToken   = "no delivery token"
	ReasonLookupFailed      = "recipient lookup failed"
	ReasonUnregistered      = "delivery token unregistered"
	ReasonDeliveryFailed    = "delivery failed"
)

// DefaultClickAction はクライアントの画面遷移に使用する既定のタグ。
const DefaultClickAction = "FLUTTER_NOTIFICATION_CLICK"

// Result は宛先1件への配信結果。
type Result struct {
	// RecipientID は宛先のユーザーID。
	RecipientID string
	// Status は配信結果。
	Status Status
	// Reason はスキップ・失敗の理由。
	Reason string
	// PushID はプッシュ配信サービスが採番したメッセージID。
	PushID string
}

// Dispatcher は宛先ごとに配信トークンを解決してプッシュ通知を送信する。
// 送信の再試行は行わない。
type Dispatcher struct {
	store       docstore.Store
	sender      push.Sender
	clickAction string
	concurrency int
	metrics     *metrics.Metrics
}

// DispatcherOption は Dispatcher の生成オプション。
type DispatcherOption func(*Dispatcher)

// WithClickAction はデータに含めるクライアント遷移タグを変更する。
func WithClickAction(action string) DispatcherOption {
	return func(d *Dispatcher) { d.clickAction = action }
}

// WithConcurrency は FanOut の同時送信数の上限を設定する。0以下は無制限。
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) { d.concurrency = n }
}

// WithMetrics は配信結果を記録するメトリクスを設定する。
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher は新しい Dispatcher を生成する。
func NewDispatcher(store docstore.Store, sender push.Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		sender:      sender,
		clickAction: DefaultClickAction,
		concurrency: 16,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch は1人の宛先に通知を送信する。
// ユーザーが存在しない、または配信トークンがない場合は送信せずにスキップする。
func (d *Dispatcher) Dispatch(ctx context.Context, recipientID string, p Payload) Result {
	res := d.dispatch(ctx, recipientID, p)
	d.metrics.Notification(string(res.Status))
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, recipientID string, p Payload) Result {
	res := Result{RecipientID: recipientID}

	snap, err := d.store.Get(ctx, model.UserRef(recipientID))
	if errors.Is(err, docstore.ErrNotFound) {
		log.Printf("[Notification] 宛先ユーザーが見つかりません: %s", recipientID)
		res.Status, res.Reason = StatusSkipped, ReasonRecipientNotFound
		return res
	}
	if err != nil {
		log.Printf("[Notification] 宛先ユーザー %s の取得に失敗: %v", recipientID, err)
		res.Status, res.Reason = StatusFailed, ReasonLookupFailed
		return res
	}

	var user model.User
	if err := snap.DataTo(&user); err != nil {
		log.Printf("[Notification] 宛先ユーザー %s のデコードに失敗: %v", recipientID, err)
		res.Status, res.Reason = StatusFailed, ReasonLookupFailed
		return res
	}
	token := user.Token()
	if token == "" {
		log.Printf("[Notification] 配信トークンがありません: %s", recipientID)
		res.Status, res.Reason = StatusSkipped, ReasonNoDeliveryToken
		return res
	}

	id, err := d.sender.Send(ctx, d.buildMessage(token, p))
	if err != nil {
		log.Printf("[Notification] 通知の送信に失敗 (%s): %v", recipientID, err)
		res.Status, res.Reason = StatusFailed, ReasonDeliveryFailed
		if errors.Is(err, push.ErrUnregistered) {
			res.Reason = ReasonUnregistered
		}
		return res
	}

	log.Printf("[Notification] 通知を送信しました: %s - %s", recipientID, id)
	res.Status, res.PushID = StatusDelivered, id
	return res
}

// FanOut は全宛先に並行して通知を送信し、全ての送信の完了を待つ。
// 結果は recipients と同じ順序で返す。1件の失敗は他の送信を中断しない。
func (d *Dispatcher) FanOut(ctx context.Context, recipients []string, p Payload) []Result {
	results := make([]Result, len(recipients))

	var g errgroup.Group
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	for i, id := range recipients {
		g.Go(func() error {
			results[i] = d.Dispatch(ctx, id, p)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// buildMessage は表示用の通知と、再取得なしで画面を開けるデータを持つメッセージを組み立てる。
func (d *Dispatcher) buildMessage(token string, p Payload) push.Message {
	return push.Message{
		Token: token,
		Notification: push.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: map[string]string{
			"chatId":       p.ChatID,
			"messageId":    p.MessageID,
			"senderId":     p.SenderID,
			"senderName":   p.SenderName,
			"text":         p.Text,
			"click_action": d.clickAction,
		},
	}
}

// Summarize は結果を状態ごとに集計する。
func Summarize(results []Result) map[Status]int {
	out := make(map[Status]int, 3)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
