package trigger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nao1215/chatsync/pkg/event"
)

// retryDelay は次回実行時刻を計算できなかった場合の再試行間隔。
const retryDelay = 30 * time.Second

// entry は登録されたスケジュール。
type entry struct {
	name string
	expr string
}

// Scheduler はcron式に従って Adapter のスケジュールハンドラを起動する。
// 同じスケジュールの実行は重ならず、実行が次回予定時刻を過ぎた場合はその回を飛ばす。
type Scheduler struct {
	adapter *Adapter
	loc     *time.Location
	entries []entry

	// now は現在時刻を返す。
	now func() time.Time
	// next はcron式から次回実行時刻を計算する。
	next func(expr string, after time.Time) (time.Time, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler は新しい Scheduler を生成する。locはcron式を解釈するタイムゾーン。
func NewScheduler(adapter *Adapter, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		adapter: adapter,
		loc:     loc,
		now:     time.Now,
		next: func(expr string, after time.Time) (time.Time, error) {
			return gronx.NextTickAfter(expr, after, false)
		},
	}
}

// Add はスケジュールを登録する。Start より前に呼び出すこと。
func (s *Scheduler) Add(name, expr string) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("スケジュール %s のcron式 %q が不正です", name, expr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{name: name, expr: expr})
	return nil
}

// Start は登録済みの各スケジュールをバックグラウンドで開始する。
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		log.Printf("[Scheduler] スケジュールを開始します: %s (%s, %s)", e.name, e.expr, s.loc)
		s.wg.Go(func() { s.run(ctx, e) })
	}
}

// Stop は全スケジュールを停止し、実行中のハンドラの完了を待つ。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// run は1つのスケジュールの実行ループ。
func (s *Scheduler) run(ctx context.Context, e entry) {
	for {
		next, err := s.next(e.expr, s.now().In(s.loc))
		if err != nil {
			log.Printf("[Scheduler] %s の次回実行時刻の計算に失敗: %v", e.name, err)
			if !sleep(ctx, retryDelay) {
				return
			}
			continue
		}

		if !sleep(ctx, time.Until(next)) {
			log.Printf("[Scheduler] スケジュールを停止します: %s", e.name)
			return
		}

		ev := event.TimerFired{Schedule: e.expr, TimeZone: s.loc.String(), ScheduledAt: next}
		// 停止要求を受けても実行中のハンドラは最後まで処理させる。
		if err := s.adapter.Fire(context.WithoutCancel(ctx), e.name, ev); err != nil {
			log.Printf("[Scheduler] %s の起動に失敗: %v", e.name, err)
		}
	}
}

// sleep はdだけ待機する。待機中にctxが終了した場合はfalseを返す。
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
