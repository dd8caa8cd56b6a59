package expiry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nao1215/chatsync/internal/model"
	"github.com/nao1215/chatsync/pkg/docstore"
	"github.com/nao1215/chatsync/pkg/event"
	"github.com/nao1215/chatsync/pkg/metrics"
)

// ScheduleName は失効処理のスケジュール名。
const ScheduleName = "cleanExpiredStories"

// Sweeper は期限切れのストーリーを非公開にする。
type Sweeper struct {
	store     docstore.Store
	now       func() time.Time
	batchSize int
	metrics   *metrics.Metrics
}

// Option は Sweeper の生成オプション。
type Option func(*Sweeper)

// WithClock は期限判定に使用する時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithBatchSize は1回の一括書き込みの件数を変更する。docstore.MaxBatchOps を超える値は無視する。
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 && n <= docstore.MaxBatchOps {
			s.batchSize = n
		}
	}
}

// WithMetrics は処理件数を記録するメトリクスを設定する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// NewSweeper は新しい Sweeper を生成する。
func NewSweeper(store docstore.Store, opts ...Option) *Sweeper {
	s := &Sweeper{store: store, now: time.Now, batchSize: docstore.MaxBatchOps}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep は isActive が true で expiresAt が現在時刻以前のストーリーを非公開にし、件数を返す。
// 対象が一括書き込みの上限以下であれば1回の書き込みで更新する。
// 上限を超える場合はドキュメントID順に上限ずつ区切って更新する。
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expired := model.StoriesRef().
		Where("isActive", docstore.OpEqual, true).
		Where("expiresAt", docstore.OpLessEqual, now)

	var (
		total  int
		cursor string
	)
	for {
		q := expired.Limit(s.batchSize)
		if cursor != "" {
			q = q.StartAfter(cursor)
		}
		snaps, err := s.store.Query(ctx, q)
		if err != nil {
			return total, fmt.Errorf("期限切れストーリーの取得に失敗: %w", err)
		}
		if len(snaps) == 0 {
			break
		}

		batch := docstore.NewBatch()
		for _, snap := range snaps {
			batch.Set(snap.Ref, map[string]any{
				"isActive":  false,
				"updatedAt": docstore.ServerTimestamp,
			}, docstore.Merge())
		}
		if err := s.store.Commit(ctx, batch); err != nil {
			return total, fmt.Errorf("ストーリーの一括更新に失敗: %w", err)
		}
		total += len(snaps)
		s.metrics.StoriesDeactivated(len(snaps))

		cursor = snaps[len(snaps)-1].Ref.ID
		if len(snaps) < s.batchSize {
			break
		}
	}

	if total == 0 {
		log.Printf("[Expiry] 非公開にするストーリーはありません")
		return 0, nil
	}
	log.Printf("[Expiry] %d件のストーリーを非公開にしました", total)
	return total, nil
}

// TimerHandler はタイマー発火ごとに失効処理を実行する。
type TimerHandler struct {
	sweeper *Sweeper
}

// NewTimerHandler は新しい TimerHandler を生成する。
func NewTimerHandler(sweeper *Sweeper) *TimerHandler {
	return &TimerHandler{sweeper: sweeper}
}

// Handle はタイマー発火イベントを処理する。
func (h *TimerHandler) Handle(ctx context.Context, ev event.TimerFired) error {
	log.Printf("[Expiry] 失効処理を開始します (予定時刻: %s)", ev.ScheduledAt.Format(time.RFC3339))
	_, err := h.sweeper.Sweep(ctx)
	return err
}
